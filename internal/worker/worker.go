// Package worker provides the optional NATS front end: it consumes synthesis
// jobs from a subject, runs them through the shared synthesizer, stores the
// resulting audio in the object store and announces the audio key.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/xtts-server/internal/core"
)

// Synthesis can legitimately take tens of seconds; the timeout only bounds
// runaway jobs.
const handleJobTimeout = 120 * time.Second

const audioKeySuffix = ".wav"

// ErrJobEmpty indicates a job carrying neither inline text nor a text key.
var ErrJobEmpty = errors.New("job carries neither text nor a text key")

// SynthesisJob is a synthesis request received over NATS. Text may be inline
// or referenced by object-store key; inline text wins when both are set.
type SynthesisJob struct {
	JobID   string `json:"job_id"`
	Text    string `json:"text,omitempty"`
	TextKey string `json:"text_key,omitempty"`
}

// AudioCreated announces a finished job: the generated WAV is in the object
// store under AudioKey.
type AudioCreated struct {
	JobID      string `json:"job_id"`
	AudioKey   string `json:"audio_key"`
	SampleRate int    `json:"sample_rate"`
}

// Worker subscribes to the synthesis subject and processes jobs one by one.
// It shares the synthesizer with the HTTP dispatcher, so jobs and HTTP
// requests serialize against the same single in-flight synthesis.
type Worker struct {
	conn           *nats.Conn
	subject        string
	publishSubject string
	store          core.ObjectStore
	speaker        core.Speaker
	log            *logger.Logger
}

// New creates a worker. Replies go to the message reply subject when one is
// set, otherwise to publishSubject.
func New(
	conn *nats.Conn,
	subject, publishSubject string,
	store core.ObjectStore,
	speaker core.Speaker,
	log *logger.Logger,
) *Worker {
	return &Worker{
		conn:           conn,
		subject:        subject,
		publishSubject: publishSubject,
		store:          store,
		speaker:        speaker,
		log:            log,
	}
}

// Run subscribes and blocks until ctx is cancelled, then drains the
// subscription.
func (w *Worker) Run(ctx context.Context) error {
	sub, err := w.conn.Subscribe(w.subject, w.handleJob)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.System("Listening for synthesis jobs on subject: %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *Worker) handleJob(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleJobTimeout)
	defer cancel()

	var job SynthesisJob

	unmarshalErr := json.Unmarshal(msg.Data, &job)
	if unmarshalErr != nil {
		w.log.Error("Failed to decode synthesis job: %v", unmarshalErr)

		return
	}

	announcement, processErr := w.processJob(ctx, &job)
	if processErr != nil {
		w.log.Error("Failed to process job %s: %v", job.JobID, processErr)

		return
	}

	publishErr := w.announce(msg, announcement)
	if publishErr != nil {
		w.log.Error("Failed to announce audio for job %s: %v", job.JobID, publishErr)
	}
}

// processJob resolves the job text, synthesizes it and uploads the audio.
func (w *Worker) processJob(ctx context.Context, job *SynthesisJob) (*AudioCreated, error) {
	input, resolveErr := w.resolveText(ctx, job)
	if resolveErr != nil {
		return nil, resolveErr
	}

	wavBytes, synthErr := w.speaker.Synthesize(ctx, input)
	if synthErr != nil {
		return nil, fmt.Errorf("failed to synthesize job text: %w", synthErr)
	}

	audioKey := uuid.NewString() + audioKeySuffix

	uploadErr := w.store.Upload(ctx, audioKey, wavBytes)
	if uploadErr != nil {
		return nil, fmt.Errorf("failed to upload audio for key %q: %w", audioKey, uploadErr)
	}

	w.log.Info("Generated audio: %s (%d bytes)", audioKey, len(wavBytes))

	return &AudioCreated{
		JobID:      job.JobID,
		AudioKey:   audioKey,
		SampleRate: w.speaker.SampleRate(),
	}, nil
}

func (w *Worker) resolveText(ctx context.Context, job *SynthesisJob) (string, error) {
	if job.Text != "" {
		return job.Text, nil
	}

	if job.TextKey == "" {
		return "", ErrJobEmpty
	}

	data, err := w.store.Download(ctx, job.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download text for key %q: %w", job.TextKey, err)
	}

	return string(data), nil
}

func (w *Worker) announce(msg *nats.Msg, announcement *AudioCreated) error {
	data, marshalErr := json.Marshal(announcement)
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal announcement: %w", marshalErr)
	}

	if msg.Reply != "" {
		respondErr := msg.Respond(data)
		if respondErr != nil {
			return fmt.Errorf("failed to reply with announcement: %w", respondErr)
		}

		return nil
	}

	publishErr := w.conn.Publish(w.publishSubject, data)
	if publishErr != nil {
		return fmt.Errorf("failed to publish announcement: %w", publishErr)
	}

	return nil
}
