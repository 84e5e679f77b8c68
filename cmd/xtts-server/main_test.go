package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSpeaker returns a fixed payload so file-writing can be verified.
type stubSpeaker struct{}

func (stubSpeaker) Synthesize(_ context.Context, _ string) ([]byte, error) {
	return []byte("RIFF-stub-audio"), nil
}

func (stubSpeaker) SampleRate() int {
	return 24000
}

func TestServerMode(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		opts     options
		expected bool
	}{
		{
			name:     "no flags defaults to server",
			opts:     options{},
			expected: true,
		},
		{
			name:     "text alone selects single-shot",
			opts:     options{text: "hello"},
			expected: false,
		},
		{
			name:     "server flag wins over text",
			opts:     options{text: "hello", server: true},
			expected: true,
		},
		{
			name:     "server flag alone",
			opts:     options{server: true},
			expected: true,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, serverMode(&testCase.opts))
		})
	}
}

func TestRunSingleShot(t *testing.T) {
	t.Parallel()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	outputPath := filepath.Join(t.TempDir(), "out.wav")

	err = runSingleShot(context.Background(), stubSpeaker{}, "hello", outputPath, log)
	require.NoError(t, err)

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF-stub-audio"), data)
}

func TestRunSingleShot_UnwritableOutput(t *testing.T) {
	t.Parallel()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	outputPath := filepath.Join(t.TempDir(), "missing", "out.wav")

	err = runSingleShot(context.Background(), stubSpeaker{}, "hello", outputPath, log)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write output file")
}
