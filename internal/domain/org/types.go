// Package org holds organization (tenant) and membership domain types.
package org

import (
	"strings"
	"time"
)

// Role is a member's role within an organization.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Valid reports whether the role is supported.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleMember:
		return true
	default:
		return false
	}
}

// ParseRole normalizes a role string and reports whether it is supported.
func ParseRole(value string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(value)))
	if r.Valid() {
		return r, true
	}
	return "", false
}

// MemberStatus is the lifecycle state of a membership row.
type MemberStatus string

const (
	StatusInvited MemberStatus = "invited"
	StatusActive  MemberStatus = "active"
	StatusRemoved MemberStatus = "removed"
)

// Member is one entry of an organization's member list.
type Member struct {
	ID        int64        `json:"id"         db:"id"`
	AccountID int64        `json:"account_id" db:"account_id"`
	Role      Role         `json:"role"       db:"role"`
	Status    MemberStatus `json:"status"     db:"status"`
}

// IsActiveAdmin reports whether the member may manage the organization.
func (m Member) IsActiveAdmin() bool {
	return m.Status == StatusActive && m.Role == RoleAdmin
}

// LeavesAdmin reports whether members still contain an active admin once the
// member with memberID has the given role and status.
func LeavesAdmin(members []Member, memberID int64, role Role, status MemberStatus) bool {
	for _, m := range members {
		if m.ID == memberID {
			m.Role, m.Status = role, status
		}
		if m.IsActiveAdmin() {
			return true
		}
	}
	return false
}

// Org is an organization row without its members.
type Org struct {
	ID        int64     `json:"id"         db:"id"`
	PublicID  string    `json:"public_id"  db:"public_id"`
	Shortcode string    `json:"shortcode"  db:"shortcode"`
	Name      string    `json:"name"       db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Context is the resolved tenant plus membership snapshot used to authorize
// per-organization requests. Members keep the store's ordering.
type Context struct {
	ID        int64    `json:"id"`
	PublicID  string   `json:"public_id"`
	Shortcode string   `json:"shortcode"`
	Name      string   `json:"name"`
	Members   []Member `json:"members"`
}

// NewContext assembles a Context from an org row and its members.
func NewContext(o Org, members []Member) Context {
	if members == nil {
		members = []Member{}
	}
	return Context{
		ID:        o.ID,
		PublicID:  o.PublicID,
		Shortcode: o.Shortcode,
		Name:      o.Name,
		Members:   members,
	}
}

// FindMember returns the member entry for accountID. Membership lists are small,
// so this is a linear scan.
func (c Context) FindMember(accountID int64) (Member, bool) {
	for _, m := range c.Members {
		if m.AccountID == accountID {
			return m, true
		}
	}
	return Member{}, false
}

// ActiveMember returns the member entry for accountID only when it is active.
func (c Context) ActiveMember(accountID int64) (Member, bool) {
	m, ok := c.FindMember(accountID)
	if !ok || m.Status != StatusActive {
		return Member{}, false
	}
	return m, true
}

// NormalizeShortcode lowercases and trims a shortcode.
func NormalizeShortcode(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidShortcode reports whether s is a usable shortcode: 2-32 chars of [a-z0-9-],
// not starting or ending with a dash.
func ValidShortcode(s string) bool {
	if len(s) < 2 || len(s) > 32 {
		return false
	}
	if s[0] == '-' || s[len(s)-1] == '-' {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' {
			continue
		}
		return false
	}
	return true
}
