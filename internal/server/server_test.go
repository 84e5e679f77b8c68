// Package server_test tests the HTTP request dispatcher.
package server_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/xtts-server/internal/engine"
	"github.com/book-expert/xtts-server/internal/server"
	"github.com/book-expert/xtts-server/internal/synth"
)

const testSampleRate = 24000

var errStubSynthesis = errors.New("stub synthesis error")

// stubSpeaker is a minimal synthesis capability recording call counts.
type stubSpeaker struct {
	mu    sync.Mutex
	calls int
	fail  bool
	audio []byte
}

func newStubSpeaker() *stubSpeaker {
	return &stubSpeaker{audio: []byte("stub-wav-bytes")}
}

func (s *stubSpeaker) Synthesize(_ context.Context, _ string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++

	if s.fail {
		return nil, errStubSynthesis
	}

	return s.audio, nil
}

func (s *stubSpeaker) SampleRate() int {
	return testSampleRate
}

func (s *stubSpeaker) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

func (s *stubSpeaker) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fail = fail
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	return log
}

func newTestServer(t *testing.T, speaker *stubSpeaker) *httptest.Server {
	t.Helper()

	testServer := httptest.NewServer(server.New(speaker, newTestLogger(t)).Router())
	t.Cleanup(testServer.Close)

	return testServer
}

func postSynthesize(t *testing.T, baseURL, body string) *http.Response {
	t.Helper()

	resp, err := http.Post(baseURL+"/synthesize", "application/json", strings.NewReader(body))
	require.NoError(t, err)

	return resp
}

func TestHealth(t *testing.T) {
	t.Parallel()

	testServer := newTestServer(t, newStubSpeaker())

	resp, err := http.Get(testServer.URL + "/health")
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestSynthesize_Success(t *testing.T) {
	t.Parallel()

	speaker := newStubSpeaker()
	testServer := newTestServer(t, speaker)

	resp := postSynthesize(t, testServer.URL, `{"text": "Hello world"}`)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/wav", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, body)
	assert.Equal(t, 1, speaker.callCount())
}

func TestSynthesize_MissingText(t *testing.T) {
	t.Parallel()

	speaker := newStubSpeaker()
	testServer := newTestServer(t, speaker)

	for _, body := range []string{`{}`, `{"text": ""}`} {
		resp := postSynthesize(t, testServer.URL, body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		_ = resp.Body.Close()
	}

	assert.Zero(t, speaker.callCount(), "synthesis must not be invoked for invalid requests")
}

func TestSynthesize_InvalidJSON(t *testing.T) {
	t.Parallel()

	speaker := newStubSpeaker()
	testServer := newTestServer(t, speaker)

	resp := postSynthesize(t, testServer.URL, `{not json`)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, speaker.callCount())
}

func TestUnknownRoutesAndMethods(t *testing.T) {
	t.Parallel()

	testServer := newTestServer(t, newStubSpeaker())

	getFoo, err := http.Get(testServer.URL + "/foo")
	require.NoError(t, err)
	_ = getFoo.Body.Close()
	assert.Equal(t, http.StatusNotFound, getFoo.StatusCode)

	postFoo, err := http.Post(testServer.URL+"/foo", "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	_ = postFoo.Body.Close()
	assert.Equal(t, http.StatusNotFound, postFoo.StatusCode)

	// A known path with the wrong method is a 404 too, not a 405.
	getSynthesize, err := http.Get(testServer.URL + "/synthesize")
	require.NoError(t, err)
	_ = getSynthesize.Body.Close()
	assert.Equal(t, http.StatusNotFound, getSynthesize.StatusCode)
}

func TestSynthesize_FailureThenRecovery(t *testing.T) {
	t.Parallel()

	speaker := newStubSpeaker()
	testServer := newTestServer(t, speaker)

	speaker.setFail(true)

	failed := postSynthesize(t, testServer.URL, `{"text": "boom"}`)

	failureBody, err := io.ReadAll(failed.Body)
	require.NoError(t, err)
	_ = failed.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, failed.StatusCode)
	assert.Contains(t, string(failureBody), errStubSynthesis.Error())

	speaker.setFail(false)

	recovered := postSynthesize(t, testServer.URL, `{"text": "still alive"}`)
	_ = recovered.Body.Close()

	assert.Equal(t, http.StatusOK, recovered.StatusCode)
}

// TestSynthesize_EndToEnd runs the dispatcher over a real synthesizer and a
// mock engine, covering conditioning caching and WAV framing together.
func TestSynthesize_EndToEnd(t *testing.T) {
	t.Parallel()

	mock := engine.NewMockEngine(testSampleRate)

	speaker, err := synth.New(context.Background(), mock, synth.Options{
		ReferencePath: "testdata/reference.wav",
		Language:      "pt",
		NormalizeText: true,
	}, newTestLogger(t))
	require.NoError(t, err)

	testServer := httptest.NewServer(server.New(speaker, newTestLogger(t)).Router())
	t.Cleanup(testServer.Close)

	var lastBody []byte

	for range 3 {
		resp := postSynthesize(t, testServer.URL, `{"text": "Hello world"}`)

		lastBody, err = io.ReadAll(resp.Body)
		require.NoError(t, err)
		_ = resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	assert.Equal(t, 1, mock.ConditioningCalls(), "conditioning must be computed exactly once")
	assert.Equal(t, 3, mock.SynthesizeCalls())

	require.GreaterOrEqual(t, len(lastBody), 44)
	assert.Equal(t, "RIFF", string(lastBody[:4]))

	headerRate := int(binary.LittleEndian.Uint32(lastBody[24:28]))
	assert.Equal(t, testSampleRate, headerRate)
}
