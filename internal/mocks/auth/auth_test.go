package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/uninbox/authd/internal/domain/auth"
	"github.com/uninbox/authd/internal/ports"
)

func TestMemoryCache_TTLExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.Now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(time.Minute)
	got, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryCache_ConditionalWrites(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	ok, err := c.SetIfExists(ctx, "k", []byte("a"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.SetIfNotExists(ctx, "k", []byte("a"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.CompareAndDelete(ctx, "k", []byte("b"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.CompareAndDelete(ctx, "k", []byte("a"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, c.Keys())
}

func TestPlainHasher(t *testing.T) {
	h := PlainHasher{}
	hash, err := h.Hash("pw")
	require.NoError(t, err)
	require.NoError(t, h.Compare(hash, "pw"))
	assert.ErrorIs(t, h.Compare(hash, "nope"), ports.ErrPasswordMismatch)
}

func TestFakeCeremony_RoundTrip(t *testing.T) {
	f := &FakeCeremony{}
	user := ports.PasskeyUser{AccountID: 1, PublicID: "pub"}

	reg, err := f.BeginRegistration(user, "")
	require.NoError(t, err)
	cred, err := f.FinishRegistration(user, reg.State, FakeAttestation(reg.Challenge, "cred-1"))
	require.NoError(t, err)
	assert.Equal(t, "cred-1", cred.CredentialID)

	user.Credentials = []domainauth.Authenticator{{CredentialID: "cred-1"}}
	start, err := f.BeginAuthentication(nil)
	require.NoError(t, err)
	resp := FakeAssertion(start.Challenge, "cred-1", 3)

	id, err := f.AssertionCredentialID(resp)
	require.NoError(t, err)
	assert.Equal(t, "cred-1", id)

	res, err := f.FinishAuthentication(user, start.State, resp)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), res.Counter)

	_, err = f.FinishAuthentication(user, start.State, FakeAssertion("other", "cred-1", 4))
	assert.ErrorIs(t, err, ErrCeremonyFailed)
}
