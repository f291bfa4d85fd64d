package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the canonical identity record.
type User struct {
	bun.BaseModel         `bun:"table:users,alias:usr"`
	ID                    uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username              string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email                 *string    `bun:"email,unique" json:"email,omitempty"`
	PasswordHash          string     `bun:"password_hash" json:"-"`
	FirstName             string     `bun:"first_name" json:"first_name,omitempty"`
	LastName              string     `bun:"last_name" json:"last_name,omitempty"`
	Avatar                string     `bun:"avatar" json:"avatar,omitempty"`
	UsernameSetupComplete bool       `bun:"username_setup_complete,notnull" json:"username_setup_complete"`
	LoggedInAt            *time.Time `bun:"loggedin_at,nullzero" json:"loggedin_at,omitempty"`
	CreatedAt             *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt             *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// GetEmail returns the email or an empty string.
func (u *User) GetEmail() string {
	if u == nil || u.Email == nil {
		return ""
	}
	return *u.Email
}

// SetEmail stores a normalized email, or clears it when empty.
func (u *User) SetEmail(email string) *User {
	email = NormalizeEmail(email)
	if email == "" {
		u.Email = nil
		return u
	}
	u.Email = &email
	return u
}

// HasPassword reports whether the identity can log in with a password.
func (u *User) HasPassword() bool {
	return u != nil && u.PasswordHash != ""
}

// DisplayName joins the name parts.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

// LinkedAccount binds an identity to one provider account.
type LinkedAccount struct {
	bun.BaseModel     `bun:"table:linked_accounts,alias:lac"`
	ID                uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID            uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	Provider          string     `bun:"provider,notnull" json:"provider,omitempty"`
	ProviderAccountID string     `bun:"provider_account_id,notnull" json:"provider_account_id,omitempty"`
	Email             string     `bun:"email" json:"email,omitempty"`
	DisplayName       string     `bun:"display_name" json:"display_name,omitempty"`
	Avatar            string     `bun:"avatar" json:"avatar,omitempty"`
	AccessToken       string     `bun:"access_token" json:"-"`
	RefreshToken      string     `bun:"refresh_token" json:"-"`
	TokenExpiresAt    *time.Time `bun:"token_expires_at,nullzero" json:"-"`
	CreatedAt         *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt         *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// APISecret stores one encrypted third-party API key for an identity.
type APISecret struct {
	bun.BaseModel `bun:"table:api_secrets,alias:aps"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	Name          string     `bun:"name,notnull" json:"name,omitempty"`
	Payload       string     `bun:"payload,notnull" json:"-"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
