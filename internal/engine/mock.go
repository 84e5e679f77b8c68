package engine

import (
	"context"
	"sync"

	"github.com/book-expert/xtts-server/internal/core"
)

// MockEngine is an in-memory stand-in for the speech model. It records call
// counts so tests can assert that conditioning is computed exactly once and
// that rejected requests never reach inference.
type MockEngine struct {
	mu                sync.Mutex
	sampleRate        int
	samples           []float64
	synthesizeErr     error
	conditioningCalls int
	synthesizeCalls   int
}

// NewMockEngine returns a mock engine reporting the given sample rate and
// producing a short fixed waveform.
func NewMockEngine(sampleRate int) *MockEngine {
	return &MockEngine{
		sampleRate: sampleRate,
		samples:    []float64{0.0, 0.25, 0.5, 0.25, 0.0, -0.25, -0.5, -0.25},
	}
}

// Start is a no-op; the mock is always ready.
func (m *MockEngine) Start(_ context.Context) error {
	return nil
}

// ComputeConditioning returns fixed opaque tensors and counts the call.
func (m *MockEngine) ComputeConditioning(_ context.Context, _ string) (core.Conditioning, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.conditioningCalls++

	return core.Conditioning{
		Latent:    []byte("latent"),
		Embedding: []byte("embedding"),
	}, nil
}

// Synthesize returns the fixed waveform, or the configured error.
func (m *MockEngine) Synthesize(_ context.Context, _, _ string, _ core.Conditioning) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.synthesizeCalls++

	if m.synthesizeErr != nil {
		return nil, m.synthesizeErr
	}

	return m.samples, nil
}

// SampleRate reports the configured sample rate.
func (m *MockEngine) SampleRate() int {
	return m.sampleRate
}

// Close is a no-op.
func (m *MockEngine) Close() error {
	return nil
}

// FailWith makes subsequent Synthesize calls return err.
func (m *MockEngine) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.synthesizeErr = err
}

// Succeed clears a previously configured failure.
func (m *MockEngine) Succeed() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.synthesizeErr = nil
}

// ConditioningCalls reports how many times conditioning was computed.
func (m *MockEngine) ConditioningCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.conditioningCalls
}

// SynthesizeCalls reports how many times inference was invoked.
func (m *MockEngine) SynthesizeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.synthesizeCalls
}
