package identity

import (
	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the signed claim set carried by a session token. It
// only holds profile fields; credentials and provider tokens never enter it.
type SessionClaims struct {
	jwt.RegisteredClaims
	Username              string `json:"username,omitempty"`
	Email                 string `json:"email,omitempty"`
	Name                  string `json:"name,omitempty"`
	Avatar                string `json:"avatar,omitempty"`
	UsernameSetupComplete *bool  `json:"usc,omitempty"`
}

// UserID returns the subject claim
func (c *SessionClaims) UserID() string {
	return c.Subject
}

// SetupComplete returns the usernameSetupComplete flag, false when absent.
func (c *SessionClaims) SetupComplete() bool {
	return c.UsernameSetupComplete != nil && *c.UsernameSetupComplete
}

func (c *SessionClaims) clone() *SessionClaims {
	out := *c
	if c.UsernameSetupComplete != nil {
		v := *c.UsernameSetupComplete
		out.UsernameSetupComplete = &v
	}
	if c.Audience != nil {
		out.Audience = append(jwt.ClaimStrings(nil), c.Audience...)
	}
	return &out
}

// applyUser copies the tracked fields from user and reports whether
// anything changed.
func (c *SessionClaims) applyUser(user *User) bool {
	flag := user.UsernameSetupComplete
	changed := c.Subject != user.ID.String() ||
		c.Username != user.Username ||
		c.Email != user.GetEmail() ||
		c.Name != user.DisplayName() ||
		c.Avatar != user.Avatar ||
		c.UsernameSetupComplete == nil ||
		*c.UsernameSetupComplete != flag

	c.Subject = user.ID.String()
	c.Username = user.Username
	c.Email = user.GetEmail()
	c.Name = user.DisplayName()
	c.Avatar = user.Avatar
	c.UsernameSetupComplete = &flag

	return changed
}
