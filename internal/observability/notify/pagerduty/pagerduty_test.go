package pagerduty

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uninbox/authd/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}

func TestBuildEventDefaults(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key", Timeout: time.Second})
	require.NoError(t, err)

	event := client.buildEvent(notify.Event{
		Type:            notify.EventPasskeyCloneSuspected,
		AccountPublicID: "acct-1",
		Metadata:        map[string]string{"credential_id": "abc", "event_type": "ignored"},
	})

	assert.Equal(t, "trigger", event["event_action"])
	assert.Equal(t, "security.passkey_clone_suspected:acct-1", event["dedup_key"])

	payload, ok := event["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "critical", payload["severity"])
	assert.Equal(t, "authd", payload["source"])
	assert.Equal(t, "sessions", payload["component"])
	assert.Equal(t, "Security event security.passkey_clone_suspected", payload["summary"])

	custom, ok := payload["custom_details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "security.passkey_clone_suspected", custom["event_type"])
	assert.Equal(t, "abc", custom["credential_id"])
}

func TestSendPostsToEndpoint(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "key", Endpoint: srv.URL})
	require.NoError(t, err)

	err = client.Send(context.Background(), notify.Event{
		Type:     notify.EventPasskeyCloneSuspected,
		Severity: notify.SeverityCritical,
		Summary:  "possible cloned passkey",
	})
	require.NoError(t, err)
	assert.Equal(t, "key", got["routing_key"])
}
