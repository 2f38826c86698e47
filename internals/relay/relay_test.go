package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPost_ForwardsWithBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/post", r.URL.Path)
		assert.Equal(t, "Bearer pipe-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"a":1}`, string(body))

		_, _ = w.Write([]byte(`{"echo":{"a":1}}`))
	}))
	defer srv.Close()

	c := NewClient(context.Background(), srv.URL+"/", "pipe-key", 5*time.Second)
	got, err := c.Post(context.Background(), "/post", map[string]any{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"echo":{"a":1}}`, string(got))
}

func TestPost_NoKeyNoAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "/run", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{}`, string(body))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(context.Background(), srv.URL, "", time.Second)
	got, err := c.Post(context.Background(), "run", nil)
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`[]`), got)
}

func TestPost_MissingBaseURL(t *testing.T) {
	c := NewClient(context.Background(), "", "k", time.Second)
	assert.False(t, c.Configured())

	_, err := c.Post(context.Background(), "/run", map[string]any{})
	require.ErrorIs(t, err, ErrBaseURLMissing)
}

func TestPost_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(context.Background(), srv.URL, "", time.Second)
	_, err := c.Post(context.Background(), "/run", nil)
	require.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "502")
}

func TestPost_NonJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	c := NewClient(context.Background(), srv.URL, "", time.Second)
	_, err := c.Post(context.Background(), "/run", nil)
	require.ErrorIs(t, err, ErrUpstream)
}
