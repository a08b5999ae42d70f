package org

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	r, ok := ParseRole(" Admin ")
	assert.True(t, ok)
	assert.Equal(t, RoleAdmin, r)

	_, ok = ParseRole("owner")
	assert.False(t, ok)
}

func TestContext_FindMember(t *testing.T) {
	c := NewContext(Org{ID: 1, Shortcode: "acme"}, []Member{
		{ID: 10, AccountID: 100, Role: RoleAdmin, Status: StatusActive},
		{ID: 11, AccountID: 101, Role: RoleMember, Status: StatusInvited},
	})

	m, ok := c.FindMember(101)
	assert.True(t, ok)
	assert.Equal(t, int64(11), m.ID)

	_, ok = c.ActiveMember(101)
	assert.False(t, ok, "invited members are not active")

	m, ok = c.ActiveMember(100)
	assert.True(t, ok)
	assert.True(t, m.IsActiveAdmin())

	_, ok = c.FindMember(999)
	assert.False(t, ok)
}

func TestNewContext_NilMembers(t *testing.T) {
	c := NewContext(Org{ID: 2}, nil)
	assert.NotNil(t, c.Members)
	assert.Empty(t, c.Members)
}

func TestValidShortcode(t *testing.T) {
	tests := map[string]bool{
		"acme":      true,
		"acme-corp": true,
		"a1":        true,
		"a":         false,
		"-acme":     false,
		"acme-":     false,
		"Acme":      false,
		"ac me":     false,
	}
	for in, want := range tests {
		assert.Equal(t, want, ValidShortcode(in), in)
	}
	assert.Equal(t, "acme", NormalizeShortcode("  ACME "))
}
