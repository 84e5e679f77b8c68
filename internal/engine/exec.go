// Package engine implements the speech model capability behind a persistent
// helper process.
//
// The helper owns the actual XTTS model: it loads the weights once, keeps
// them resident, and answers line-delimited JSON requests on stdin/stdout.
// Three operations exist: "load" (returns the model's output sample rate),
// "conditioning" (returns the speaker conditioning tensors, base64-encoded)
// and "synthesize" (returns the waveform, either as base64 little-endian
// float32 PCM or as a plain JSON sample array). The conditioning tensors are
// opaque to this package; they are cached by the caller and handed back with
// every synthesize request, which keeps the helper itself stateless beyond
// the loaded weights.
package engine

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"sync"

	"github.com/book-expert/logger"
	shellwords "github.com/mattn/go-shellwords"

	"github.com/book-expert/xtts-server/internal/core"
)

// A minute of 24 kHz float32 audio is under 8 MiB of base64; the ceiling
// leaves generous headroom for long inputs the model chunks internally.
const (
	initialScanBuffer = 64 * 1024
	maxResponseLine   = 512 * 1024 * 1024
)

// Static errors.
var (
	ErrCommandEmpty      = errors.New("engine command cannot be empty")
	ErrNotStarted        = errors.New("engine has not been started")
	ErrHelperFailure     = errors.New("engine helper reported an error")
	ErrHelperExited      = errors.New("engine helper closed its output stream")
	ErrSampleRateMissing = errors.New("engine helper reported no sample rate")
	ErrConditioningEmpty = errors.New("engine helper returned empty conditioning tensors")
	ErrEmptyWaveform     = errors.New("engine helper returned an empty waveform")
	ErrMalformedWaveform = errors.New("engine helper returned malformed PCM data")
)

const bytesPerFloat32 = 4

// Options configures an ExecEngine.
type Options struct {
	// Command is the helper command line, parsed shell-style.
	Command string
	// ModelName is the pretrained model identifier passed to the helper.
	ModelName string
	// Device is the compute device the helper loads the model onto.
	Device string
	// Conditioning window parameters forwarded verbatim to the helper.
	GPTCondLen      int
	GPTCondChunkLen int
	MaxRefLength    int
}

// ExecEngine runs the speech model in a persistent helper subprocess and
// implements core.SpeechEngine. All requests are serialized: the helper
// answers exactly one request at a time and an in-flight inference is never
// cancelled.
type ExecEngine struct {
	opts Options
	argv []string
	log  *logger.Logger

	mu         sync.Mutex
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     *bufio.Scanner
	sampleRate int
}

type helperRequest struct {
	Op              string `json:"op"`
	ModelName       string `json:"model_name,omitempty"`
	Device          string `json:"device,omitempty"`
	AudioPath       string `json:"audio_path,omitempty"`
	GPTCondLen      int    `json:"gpt_cond_len,omitempty"`
	GPTCondChunkLen int    `json:"gpt_cond_chunk_len,omitempty"`
	MaxRefLength    int    `json:"max_ref_length,omitempty"`
	Text            string `json:"text,omitempty"`
	Language        string `json:"language,omitempty"`
	LatentB64       string `json:"latent_b64,omitempty"`
	EmbeddingB64    string `json:"embedding_b64,omitempty"`
}

type helperResponse struct {
	Error        string    `json:"error,omitempty"`
	SampleRate   int       `json:"sample_rate,omitempty"`
	LatentB64    string    `json:"latent_b64,omitempty"`
	EmbeddingB64 string    `json:"embedding_b64,omitempty"`
	PCMB64       string    `json:"pcm_b64,omitempty"`
	Samples      []float64 `json:"samples,omitempty"`
}

// New creates an ExecEngine from the given options. The helper process is not
// spawned until Start is called.
func New(opts Options, log *logger.Logger) (*ExecEngine, error) {
	argv, err := shellwords.NewParser().Parse(opts.Command)
	if err != nil {
		return nil, fmt.Errorf("failed to parse engine command: %w", err)
	}

	if len(argv) == 0 {
		return nil, ErrCommandEmpty
	}

	return &ExecEngine{
		opts: opts,
		argv: argv,
		log:  log,
	}, nil
}

// Start spawns the helper and instructs it to load the model. It blocks until
// the helper confirms the model is resident and reports its output sample
// rate. Any failure here leaves the engine stopped.
func (e *ExecEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cmd := exec.CommandContext(ctx, e.argv[0], e.argv[1:]...)
	// Helper load progress goes straight to our stderr.
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open helper stdin: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open helper stdout: %w", err)
	}

	startErr := cmd.Start()
	if startErr != nil {
		return fmt.Errorf("failed to start engine helper %q: %w", e.argv[0], startErr)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, initialScanBuffer), maxResponseLine)

	e.cmd = cmd
	e.stdin = stdin
	e.stdout = scanner

	e.log.Info("Loading model %q on %s", e.opts.ModelName, e.opts.Device)

	resp, loadErr := e.roundTripLocked(helperRequest{
		Op:        "load",
		ModelName: e.opts.ModelName,
		Device:    e.opts.Device,
	})
	if loadErr != nil {
		_ = e.stopLocked()

		return fmt.Errorf("model load failed: %w", loadErr)
	}

	if resp.SampleRate <= 0 {
		_ = e.stopLocked()

		return ErrSampleRateMissing
	}

	e.sampleRate = resp.SampleRate

	return nil
}

// ComputeConditioning derives the speaker conditioning tensors from the given
// reference audio file.
func (e *ExecEngine) ComputeConditioning(ctx context.Context, audioPath string) (core.Conditioning, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cmd == nil {
		return core.Conditioning{}, ErrNotStarted
	}

	ctxErr := ctx.Err()
	if ctxErr != nil {
		return core.Conditioning{}, fmt.Errorf("conditioning aborted: %w", ctxErr)
	}

	resp, err := e.roundTripLocked(helperRequest{
		Op:              "conditioning",
		AudioPath:       audioPath,
		GPTCondLen:      e.opts.GPTCondLen,
		GPTCondChunkLen: e.opts.GPTCondChunkLen,
		MaxRefLength:    e.opts.MaxRefLength,
	})
	if err != nil {
		return core.Conditioning{}, fmt.Errorf("conditioning computation failed: %w", err)
	}

	if resp.LatentB64 == "" || resp.EmbeddingB64 == "" {
		return core.Conditioning{}, ErrConditioningEmpty
	}

	latent, err := base64.StdEncoding.DecodeString(resp.LatentB64)
	if err != nil {
		return core.Conditioning{}, fmt.Errorf("failed to decode conditioning latent: %w", err)
	}

	embedding, err := base64.StdEncoding.DecodeString(resp.EmbeddingB64)
	if err != nil {
		return core.Conditioning{}, fmt.Errorf("failed to decode speaker embedding: %w", err)
	}

	return core.Conditioning{Latent: latent, Embedding: embedding}, nil
}

// Synthesize runs inference with the cached conditioning tensors and returns
// the flat mono waveform. The read blocks until the helper answers; a client
// going away does not stop an in-progress inference.
func (e *ExecEngine) Synthesize(ctx context.Context, text, language string, cond core.Conditioning) ([]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cmd == nil {
		return nil, ErrNotStarted
	}

	ctxErr := ctx.Err()
	if ctxErr != nil {
		return nil, fmt.Errorf("synthesis aborted: %w", ctxErr)
	}

	resp, err := e.roundTripLocked(helperRequest{
		Op:           "synthesize",
		Text:         text,
		Language:     language,
		LatentB64:    base64.StdEncoding.EncodeToString(cond.Latent),
		EmbeddingB64: base64.StdEncoding.EncodeToString(cond.Embedding),
	})
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	return decodeWaveform(resp)
}

// SampleRate reports the model's native output sample rate.
func (e *ExecEngine) SampleRate() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.sampleRate
}

// Close terminates the helper process. Model resources are released only by
// process exit, matching the lifetime of the cached conditioning state.
func (e *ExecEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.stopLocked()
}

func (e *ExecEngine) stopLocked() error {
	if e.cmd == nil {
		return nil
	}

	// Closing stdin is the shutdown signal; the helper exits on EOF.
	closeErr := e.stdin.Close()
	waitErr := e.cmd.Wait()

	e.cmd = nil
	e.stdin = nil
	e.stdout = nil

	if closeErr != nil {
		return fmt.Errorf("failed to close helper stdin: %w", closeErr)
	}

	if waitErr != nil {
		return fmt.Errorf("engine helper exited abnormally: %w", waitErr)
	}

	return nil
}

// roundTripLocked writes one request line and reads one response line.
// Callers must hold e.mu.
func (e *ExecEngine) roundTripLocked(req helperRequest) (*helperResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal helper request: %w", err)
	}

	payload = append(payload, '\n')

	_, writeErr := e.stdin.Write(payload)
	if writeErr != nil {
		return nil, fmt.Errorf("failed to write to engine helper: %w", writeErr)
	}

	if !e.stdout.Scan() {
		scanErr := e.stdout.Err()
		if scanErr != nil {
			return nil, fmt.Errorf("failed to read helper response: %w", scanErr)
		}

		return nil, ErrHelperExited
	}

	var resp helperResponse

	unmarshalErr := json.Unmarshal(e.stdout.Bytes(), &resp)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to decode helper response: %w", unmarshalErr)
	}

	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrHelperFailure, resp.Error)
	}

	return &resp, nil
}

// decodeWaveform unwraps either waveform shape the helper may produce:
// base64 little-endian float32 PCM, or a plain JSON array of samples.
func decodeWaveform(resp *helperResponse) ([]float64, error) {
	if resp.PCMB64 != "" {
		raw, err := base64.StdEncoding.DecodeString(resp.PCMB64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode PCM payload: %w", err)
		}

		if len(raw) == 0 {
			return nil, ErrEmptyWaveform
		}

		if len(raw)%bytesPerFloat32 != 0 {
			return nil, ErrMalformedWaveform
		}

		samples := make([]float64, len(raw)/bytesPerFloat32)
		for i := range samples {
			bits := binary.LittleEndian.Uint32(raw[i*bytesPerFloat32:])
			samples[i] = float64(math.Float32frombits(bits))
		}

		return samples, nil
	}

	if len(resp.Samples) > 0 {
		return resp.Samples, nil
	}

	return nil, ErrEmptyWaveform
}
