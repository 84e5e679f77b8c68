// Package client_test tests the xtts-server HTTP client.
package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/xtts-server/internal/client"
)

const testTimeout = 5 * time.Second

func newAPIServer(t *testing.T, routes map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()

	testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)

			return
		}

		handler(w, r)
	}))
	t.Cleanup(testServer.Close)

	return testServer
}

func TestSynthesize_Success(t *testing.T) {
	t.Parallel()

	const audioData = "mock-wav-audio-data"

	testServer := newAPIServer(t, map[string]http.HandlerFunc{
		"/synthesize": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "audio/wav")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(audioData))
		},
	})

	api := client.New(testServer.URL, testTimeout)

	got, err := api.Synthesize(context.Background(), "Hello world")
	require.NoError(t, err)
	assert.Equal(t, []byte(audioData), got)
}

func TestSynthesize_EmptyText(t *testing.T) {
	t.Parallel()

	api := client.New("http://localhost:5050", testTimeout)

	_, err := api.Synthesize(context.Background(), "")
	require.ErrorIs(t, err, client.ErrTextEmpty)
}

func TestSynthesize_ServerError(t *testing.T) {
	t.Parallel()

	testServer := newAPIServer(t, map[string]http.HandlerFunc{
		"/synthesize": func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "inference failed: boom", http.StatusInternalServerError)
		},
	})

	api := client.New(testServer.URL, testTimeout)

	_, err := api.Synthesize(context.Background(), "Hello")
	require.ErrorIs(t, err, client.ErrServerFailure)
	assert.Contains(t, err.Error(), "inference failed: boom")
}

func TestSynthesize_WrongContentType(t *testing.T) {
	t.Parallel()

	testServer := newAPIServer(t, map[string]http.HandlerFunc{
		"/synthesize": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("not audio"))
		},
	})

	api := client.New(testServer.URL, testTimeout)

	_, err := api.Synthesize(context.Background(), "Hello")
	require.ErrorIs(t, err, client.ErrNotWAV)
}

func TestSynthesize_EmptyAudio(t *testing.T) {
	t.Parallel()

	testServer := newAPIServer(t, map[string]http.HandlerFunc{
		"/synthesize": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "audio/wav")
			w.WriteHeader(http.StatusOK)
		},
	})

	api := client.New(testServer.URL, testTimeout)

	_, err := api.Synthesize(context.Background(), "Hello")
	require.ErrorIs(t, err, client.ErrEmptyAudio)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	healthy := newAPIServer(t, map[string]http.HandlerFunc{
		"/health": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		},
	})

	api := client.New(healthy.URL, testTimeout)
	require.NoError(t, api.Health(context.Background()))

	unhealthy := newAPIServer(t, map[string]http.HandlerFunc{})

	api = client.New(unhealthy.URL, testTimeout)
	require.ErrorIs(t, api.Health(context.Background()), client.ErrHealthNotOK)
}
