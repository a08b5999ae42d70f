package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uninbox/authd/internal/observability/notify"
	"github.com/uninbox/authd/internal/testutil"
)

func TestNewEventPublisher_Validation(t *testing.T) {
	_, err := NewEventPublisher(nil, "events")
	require.Error(t, err)
}

func TestEventPublisher_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := testutil.SetupTestRedis(t)
	defer client.Close()

	pub, err := NewEventPublisher(client, "authd:test-events")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan notify.Event, 1)
	done := make(chan error, 1)
	go func() { done <- pub.Subscribe(ctx, func(ev notify.Event) { got <- ev }) }()

	// Publish until the subscriber is attached; messages sent earlier are dropped.
	sent := notify.Event{Type: notify.EventPasskeyAdded, Severity: notify.SeverityInfo, AccountPublicID: "acct-1"}
	require.Eventually(t, func() bool {
		require.NoError(t, pub.Send(ctx, sent))
		select {
		case ev := <-got:
			assert.Equal(t, sent.Type, ev.Type)
			assert.Equal(t, "acct-1", ev.AccountPublicID)
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}
