package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// generateURL helper
// ---------------------------------------------------------------------------

func TestGenerateURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"http://localhost:11434", "http://localhost:11434/api/generate"},
		{"http://localhost:11434/", "http://localhost:11434/api/generate"},
		{"http://gpu-box:11434/api", "http://gpu-box:11434/api/generate"},
		{"", "http://localhost:11434/api/generate"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, generateURL(tc.base), "base=%q", tc.base)
	}
}

// ---------------------------------------------------------------------------
// NewClient
// ---------------------------------------------------------------------------

func TestNewClient_EmptyModel(t *testing.T) {
	_, err := NewClient("  ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "model")
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient("mistral")
	require.NoError(t, err)
	require.Equal(t, DefaultBaseURL, c.baseURL)
	require.Equal(t, "mistral", c.Model())
	require.Equal(t, 60*time.Second, c.httpClient.Timeout)
}

func TestNewClient_NilHTTPClientFallsBack(t *testing.T) {
	c, err := NewClient("mistral", WithHTTPClient(nil))
	require.NoError(t, err)
	require.NotNil(t, c.httpClient)
}

// ---------------------------------------------------------------------------
// Client.Complete
// ---------------------------------------------------------------------------

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(
		"mistral",
		WithBaseURL(srv.URL),
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
	)
	require.NoError(t, err)
	return c
}

func TestComplete_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		require.Equal(t, map[string]any{"model": "mistral", "prompt": "Hello", "stream": false}, body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"Hi there","done":true}`))
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv).Complete(context.Background(), "Hello")
	require.NoError(t, err)
	require.Equal(t, "Hi there", out)
}

func TestComplete_NotDoneStillReturnsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"partial","done":false}`))
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv).Complete(context.Background(), "Hello")
	require.NoError(t, err)
	require.Equal(t, "partial", out)
}

func TestComplete_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"model not loaded"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Complete(context.Background(), "Hello")
	require.Error(t, err)
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, 500, statusErr.HTTPStatusCode())
	require.Contains(t, err.Error(), "500")
	require.Contains(t, statusErr.Body, "model not loaded")
}

func TestComplete_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not-a-json`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Complete(context.Background(), "Hello")
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
}

func TestComplete_MissingFields(t *testing.T) {
	for _, body := range []string{`{"done":true}`, `{"response":"x"}`, `{}`} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		_, err := newTestClient(t, srv).Complete(context.Background(), "Hello")
		srv.Close()

		var decErr *DecodeError
		require.ErrorAs(t, err, &decErr, "body=%s", body)
		require.Contains(t, err.Error(), "missing")
	}
}

func TestComplete_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c, err := NewClient("mistral", WithBaseURL("http://"+addr))
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), "Hello")
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	require.Contains(t, netErr.URL, addr)
}

func TestComplete_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c, err := NewClient("mistral",
		WithBaseURL(srv.URL),
		WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}),
	)
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "Hello")
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	var timeout interface{ Timeout() bool }
	require.True(t, errors.As(err, &timeout) && timeout.Timeout())
}
