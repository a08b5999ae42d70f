package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/uninbox/authd/internal/core"
	domainauth "github.com/uninbox/authd/internal/domain/auth"
	"github.com/uninbox/authd/internal/domain/org"
	apperrors "github.com/uninbox/authd/internal/errors"
	"github.com/uninbox/authd/internal/mocks"
	mockauth "github.com/uninbox/authd/internal/mocks/auth"
)

func testSession(token string) domainauth.Session {
	return domainauth.Session{
		Token:     token,
		AccountID: 7,
		ExpiresAt: time.Now().Add(time.Hour),
		Account:   domainauth.SessionPayload{Version: domainauth.SessionPayloadVersion, AccountID: 7, Username: "alice"},
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "session:tok", core.SessionKey("tok"))
	assert.Equal(t, "reset-token:password:pub", core.TokenKey(domainauth.PurposePassword, "pub"))
	assert.Equal(t, "passkey-challenge:abc", core.ChallengeKey("abc"))
	assert.Equal(t, "org-context:acme", core.OrgContextKey("acme"))
	assert.Equal(t, "totp-setup:pub", core.TOTPSetupKey("pub"))
}

func TestSessionCache_PutGetReplace(t *testing.T) {
	ctx := context.Background()
	kv := mockauth.NewMemoryCache()
	c := core.NewSessionCache(kv)

	got, err := c.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Nil(t, got)

	ok, err := c.Replace(ctx, testSession("tok"), time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "replace must not create a missing entry")
	assert.Empty(t, kv.Keys())

	require.NoError(t, c.Put(ctx, testSession("tok"), time.Hour))
	got, err = c.Get(ctx, "tok")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(7), got.AccountID)

	ok, err = c.Replace(ctx, testSession("tok"), 2*time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
	ttl, _ := kv.TTL(core.SessionKey("tok"))
	assert.Greater(t, ttl, time.Hour)
}

func TestSessionCache_VersionMismatchIsMiss(t *testing.T) {
	ctx := context.Background()
	kv := mockauth.NewMemoryCache()
	c := core.NewSessionCache(kv)

	old := testSession("tok")
	old.Account.Version = 0
	require.NoError(t, c.Put(ctx, old, time.Hour))

	got, err := c.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, kv.Set(ctx, core.SessionKey("bad"), []byte("{not json"), time.Hour))
	got, err = c.Get(ctx, "bad")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionCache_DeleteMany(t *testing.T) {
	ctx := context.Background()
	kv := mockauth.NewMemoryCache()
	c := core.NewSessionCache(kv)

	tokens := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	for _, tok := range tokens {
		require.NoError(t, c.Put(ctx, testSession(tok), time.Hour))
	}
	require.NoError(t, c.Put(ctx, testSession("keep"), time.Hour))

	require.NoError(t, c.DeleteMany(ctx, tokens))
	assert.Equal(t, []string{"session:keep"}, kv.Keys())
}

func TestSessionCache_ErrorsAreStoreUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	kv := mocks.NewMockCacheRepository(ctrl)
	boom := errors.New("connection refused")
	kv.EXPECT().Get(gomock.Any(), "session:tok").Return(nil, boom)

	_, err := core.NewSessionCache(kv).Get(context.Background(), "tok")
	require.Error(t, err)
	assert.True(t, apperrors.IsStoreUnavailable(err))
	assert.ErrorIs(t, err, boom)
}

func TestTokenCache_ConsumeOnce(t *testing.T) {
	ctx := context.Background()
	c := core.NewTokenCache(mockauth.NewMemoryCache())

	require.NoError(t, c.Put(ctx, domainauth.PurposePassword, "pub", "tok-1", time.Minute))

	ok, err := c.Consume(ctx, domainauth.PurposeTwoFactor, "pub", "tok-1")
	require.NoError(t, err)
	assert.False(t, ok, "purpose scopes the token")

	ok, err = c.Consume(ctx, domainauth.PurposePassword, "pub", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.Consume(ctx, domainauth.PurposePassword, "pub", "tok-1")
	require.NoError(t, err)
	assert.True(t, ok, "a wrong token leaves the stored one")

	ok, err = c.Consume(ctx, domainauth.PurposePassword, "pub", "tok-1")
	require.NoError(t, err)
	assert.False(t, ok, "second use fails")
}

func TestTokenCache_ConcurrentConsumeSingleWinner(t *testing.T) {
	ctx := context.Background()
	c := core.NewTokenCache(mockauth.NewMemoryCache())
	require.NoError(t, c.Put(ctx, domainauth.PurposeSession, "pub", "tok", time.Minute))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := c.Consume(ctx, domainauth.PurposeSession, "pub", "tok")
			if err == nil && ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestChallengeCache_TakeRemoves(t *testing.T) {
	ctx := context.Background()
	c := core.NewChallengeCache(mockauth.NewMemoryCache())

	ch := domainauth.PasskeyChallenge{Type: domainauth.ChallengeAuthentication, Challenge: "abc", Ceremony: []byte(`{}`)}
	require.NoError(t, c.Put(ctx, "cid", ch, time.Minute))

	got, err := c.Take(ctx, "cid")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domainauth.ChallengeAuthentication, got.Type)

	got, err = c.Take(ctx, "cid")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestOrgCache_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	c := core.NewOrgCache(mockauth.NewMemoryCache())

	oc := org.NewContext(org.Org{ID: 1, Shortcode: "acme"}, []org.Member{{ID: 1, AccountID: 2, Role: org.RoleAdmin, Status: org.StatusActive}})
	require.NoError(t, c.Put(ctx, oc, time.Hour))

	got, err := c.Get(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, oc, *got)

	require.NoError(t, c.Delete(ctx, "acme"))
	got, err = c.Get(ctx, "acme")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTOTPSetupCache(t *testing.T) {
	ctx := context.Background()
	c := core.NewTOTPSetupCache(mockauth.NewMemoryCache())

	s, err := c.Get(ctx, "pub")
	require.NoError(t, err)
	assert.Empty(t, s)

	require.NoError(t, c.Put(ctx, "pub", "SECRET", time.Minute))
	s, err = c.Get(ctx, "pub")
	require.NoError(t, err)
	assert.Equal(t, "SECRET", s)

	require.NoError(t, c.Delete(ctx, "pub"))
}
