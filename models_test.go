package identity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/goliatone/go-identity"
)

func TestUserEmailHelpers(t *testing.T) {
	u := &identity.User{}
	assert.Equal(t, "", u.GetEmail())

	u.SetEmail("  Ada@Example.COM ")
	assert.Equal(t, "ada@example.com", u.GetEmail())

	u.SetEmail("   ")
	assert.Nil(t, u.Email)

	var nilUser *identity.User
	assert.Equal(t, "", nilUser.GetEmail())
	assert.False(t, nilUser.HasPassword())
	assert.Equal(t, "", nilUser.DisplayName())
}

func TestUserDisplayName(t *testing.T) {
	cases := []struct {
		name  string
		first string
		last  string
		want  string
	}{
		{name: "both", first: "Ada", last: "Lovelace", want: "Ada Lovelace"},
		{name: "first only", first: "Ada", want: "Ada"},
		{name: "last only", last: " Lovelace ", want: "Lovelace"},
		{name: "none", want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u := &identity.User{FirstName: tc.first, LastName: tc.last}
			assert.Equal(t, tc.want, u.DisplayName())
		})
	}
}

func TestUserHasPassword(t *testing.T) {
	assert.False(t, (&identity.User{}).HasPassword())
	assert.True(t, (&identity.User{PasswordHash: "$2a$10$x"}).HasPassword())
}
