// Package core defines the capability interfaces shared by the xtts-server
// components. The speech model itself lives behind SpeechEngine so that the
// synthesizer, the HTTP dispatcher and the NATS worker can all be exercised
// against a stand-in implementation.
package core

import "context"

// Conditioning is the speaker conditioning state derived once from the
// reference audio: a conditioning latent and a speaker embedding, carried as
// opaque serialized tensors. Exactly one Conditioning exists per process; it
// is computed at startup and never recomputed.
type Conditioning struct {
	Latent    []byte
	Embedding []byte
}

// SpeechEngine is the narrow contract for the pretrained multilingual speech
// model. Implementations own the model weights, the inference routine and the
// device placement; callers treat all of it as opaque.
type SpeechEngine interface {
	// Start loads the model and blocks until it is ready to serve. Loading
	// can take tens of seconds; a failure here is fatal and not retried.
	Start(ctx context.Context) error

	// ComputeConditioning derives the speaker conditioning state from a
	// reference audio file.
	ComputeConditioning(ctx context.Context, audioPath string) (Conditioning, error)

	// Synthesize runs inference for the given text and returns the raw
	// mono waveform samples.
	Synthesize(ctx context.Context, text, language string, cond Conditioning) ([]float64, error)

	// SampleRate reports the model's native output sample rate in Hz.
	// Only valid after Start has returned.
	SampleRate() int

	Close() error
}

// Speaker is the synthesis capability the request front ends depend on:
// text in, encoded WAV bytes out.
type Speaker interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	SampleRate() int
}

// ObjectStore is the contract for the blob store used by the NATS job worker.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}
