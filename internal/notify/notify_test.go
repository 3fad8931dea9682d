package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zpdzap/wsport/internal/logging"
)

func TestNotifyPostsPayload(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, logging.Discard())
	require.NoError(t, w.Notify(context.Background(), "New port: **40123**", false))

	assert.Equal(t, Sender, got.Username)
	assert.Equal(t, "✅ **Windscribe Port Manager**\nNew port: **40123**", got.Content)
}

func TestNotifyErrorPrefix(t *testing.T) {
	assert.Equal(t, "❌ **Windscribe Port Manager**\nboom", Format("boom", true))
}

func TestNotifyHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, logging.Discard())
	err := w.Notify(context.Background(), "x", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestNotifyWithoutURLIsNoop(t *testing.T) {
	w := NewWebhook("", logging.Discard())
	called := false
	w.httpDo = func(*http.Request) (*http.Response, error) {
		called = true
		return nil, nil
	}
	assert.NoError(t, w.Notify(context.Background(), "x", true))
	assert.False(t, called)
}
