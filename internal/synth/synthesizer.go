// Package synth turns text into WAV audio using a loaded speech model and a
// speaker conditioning state computed once at construction.
package synth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/book-expert/logger"

	"github.com/book-expert/xtts-server/internal/core"
	"github.com/book-expert/xtts-server/internal/text"
)

// ErrTextEmpty is returned when there is nothing to synthesize.
var ErrTextEmpty = errors.New("text cannot be empty")

// Options configures a Synthesizer.
type Options struct {
	// ReferencePath is the reference voice sample the conditioning state
	// is derived from. Read once; immutable for the process lifetime.
	ReferencePath string
	// Language is the fixed language code applied to every request.
	Language string
	// NormalizeText enables input normalization before inference.
	NormalizeText bool
}

// Synthesizer holds the ready model handle and the cached conditioning state,
// and produces WAV buffers from text. A mutex keeps exactly one synthesis in
// flight at a time; a second caller blocks until the current one finishes.
type Synthesizer struct {
	engine     core.SpeechEngine
	cond       core.Conditioning
	language   string
	normalizer *text.Normalizer
	log        *logger.Logger
	mu         sync.Mutex
}

// New starts the engine, loads the model and computes the speaker
// conditioning state. Both steps block; with a real model this takes tens of
// seconds. Any failure is fatal to the caller, there is no retry.
func New(ctx context.Context, eng core.SpeechEngine, opts Options, log *logger.Logger) (*Synthesizer, error) {
	startErr := eng.Start(ctx)
	if startErr != nil {
		return nil, fmt.Errorf("failed to start speech engine: %w", startErr)
	}

	log.Info("Computing speaker conditioning from: %s", opts.ReferencePath)

	cond, condErr := eng.ComputeConditioning(ctx, opts.ReferencePath)
	if condErr != nil {
		return nil, fmt.Errorf("failed to compute speaker conditioning: %w", condErr)
	}

	log.Info("Speaker conditioning cached. Sample rate: %d Hz", eng.SampleRate())

	var normalizer *text.Normalizer
	if opts.NormalizeText {
		normalizer = text.NewNormalizer()
	}

	return &Synthesizer{
		engine:     eng,
		cond:       cond,
		language:   opts.Language,
		normalizer: normalizer,
		log:        log,
	}, nil
}

// Synthesize runs inference for the given text with the cached conditioning
// state and returns the encoded WAV bytes.
func (s *Synthesizer) Synthesize(ctx context.Context, input string) ([]byte, error) {
	if input == "" {
		return nil, ErrTextEmpty
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.normalizer != nil {
		input = s.normalizer.Normalize(input)
		if input == "" {
			return nil, ErrTextEmpty
		}
	}

	samples, err := s.engine.Synthesize(ctx, input, s.language, s.cond)
	if err != nil {
		return nil, err
	}

	wavBytes, encodeErr := encodeWAV(samples, s.engine.SampleRate())
	if encodeErr != nil {
		return nil, fmt.Errorf("failed to encode waveform: %w", encodeErr)
	}

	return wavBytes, nil
}

// SampleRate reports the model's native output sample rate.
func (s *Synthesizer) SampleRate() int {
	return s.engine.SampleRate()
}

// Close releases the engine.
func (s *Synthesizer) Close() error {
	closeErr := s.engine.Close()
	if closeErr != nil {
		return fmt.Errorf("failed to close speech engine: %w", closeErr)
	}

	return nil
}
