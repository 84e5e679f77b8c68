// main package for xtts-server: a persistent XTTS speech server that loads
// the model once, caches the speaker conditioning state, and serves synthesis
// over HTTP (and optionally NATS). A single-shot mode synthesizes one
// utterance to a file without starting any listener.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/book-expert/xtts-server/internal/config"
	"github.com/book-expert/xtts-server/internal/core"
	"github.com/book-expert/xtts-server/internal/engine"
	"github.com/book-expert/xtts-server/internal/objectstore"
	"github.com/book-expert/xtts-server/internal/server"
	"github.com/book-expert/xtts-server/internal/synth"
	"github.com/book-expert/xtts-server/internal/worker"
)

// Defaults for the command-line flags.
const (
	defaultLanguage = "pt"
	defaultPort     = 5050
	defaultOutput   = "/tmp/xtts_output.wav"
)

const outputFilePermissions = 0o600

// options holds the parsed command-line flag values.
type options struct {
	reference string
	language  string
	port      int
	text      string
	output    string
	server    bool
}

// serverMode reports whether the invocation runs the listeners. With neither
// --server nor --text given, serving is the deliberate default.
func serverMode(opts *options) bool {
	if opts.server {
		return true
	}

	return opts.text == ""
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "xtts-server",
		Short:         "Persistent XTTS speech server with cached speaker conditioning",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.reference, "reference", "r", "", "path to the reference voice WAV file")
	cmd.Flags().StringVarP(&opts.language, "language", "l", defaultLanguage, "language code")
	cmd.Flags().IntVarP(&opts.port, "port", "p", defaultPort, "HTTP server port")
	cmd.Flags().StringVarP(&opts.text, "text", "t", "", "text to synthesize (single-shot mode)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", defaultOutput, "output WAV file path (single-shot mode)")
	cmd.Flags().BoolVarP(&opts.server, "server", "s", false, "run in HTTP server mode")

	_ = cmd.MarkFlagRequired("reference")

	return cmd
}

func run(ctx context.Context, opts *options) error {
	bootstrapLog, bootstrapErr := logger.New(os.TempDir(), "xtts-server-bootstrap.log")
	if bootstrapErr != nil {
		return fmt.Errorf("failed to create bootstrap logger: %w", bootstrapErr)
	}

	cfg := config.Load(bootstrapLog)

	log, logErr := logger.New(cfg.Paths.BaseLogsDir, "xtts-server.log")
	if logErr != nil {
		return fmt.Errorf("failed to create logger: %w", logErr)
	}

	defer func() {
		closeErr := log.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
		}
	}()

	// The reference sample must exist before any loading is attempted.
	_, statErr := os.Stat(opts.reference)
	if statErr != nil {
		return fmt.Errorf("reference audio not found: %s: %w", opts.reference, statErr)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, engErr := engine.New(engine.Options{
		Command:         cfg.Engine.Command,
		ModelName:       cfg.Engine.ModelName,
		Device:          cfg.Engine.Device,
		GPTCondLen:      cfg.Engine.GPTCondLen,
		GPTCondChunkLen: cfg.Engine.GPTCondChunkLen,
		MaxRefLength:    cfg.Engine.MaxRefLength,
	}, log)
	if engErr != nil {
		return fmt.Errorf("failed to create speech engine: %w", engErr)
	}

	speaker, synthErr := synth.New(ctx, eng, synth.Options{
		ReferencePath: opts.reference,
		Language:      opts.language,
		NormalizeText: !cfg.Engine.DisableNormalization,
	}, log)
	if synthErr != nil {
		return fmt.Errorf("failed to initialize synthesizer: %w", synthErr)
	}

	defer func() {
		closeErr := speaker.Close()
		if closeErr != nil {
			log.Warn("Failed to close synthesizer: %v", closeErr)
		}
	}()

	if !serverMode(opts) {
		return runSingleShot(ctx, speaker, opts.text, opts.output, log)
	}

	return runServer(ctx, cfg, speaker, opts.port, log)
}

// runSingleShot synthesizes one utterance, writes the WAV to outputPath and
// prints the path. No listener is started.
func runSingleShot(ctx context.Context, speaker core.Speaker, input, outputPath string, log *logger.Logger) error {
	wavBytes, synthErr := speaker.Synthesize(ctx, input)
	if synthErr != nil {
		return fmt.Errorf("synthesis failed: %w", synthErr)
	}

	writeErr := os.WriteFile(outputPath, wavBytes, outputFilePermissions)
	if writeErr != nil {
		return fmt.Errorf("failed to write output file: %w", writeErr)
	}

	log.Info("Generated audio: %s (%d bytes)", outputPath, len(wavBytes))
	fmt.Println(outputPath)

	return nil
}

// runServer starts the HTTP dispatcher and, when configured, the NATS job
// worker. Both front ends share the one synthesizer.
func runServer(ctx context.Context, cfg *config.Config, speaker core.Speaker, port int, log *logger.Logger) error {
	if cfg.NATS.Enabled {
		conn, connectErr := nats.Connect(cfg.NATS.URL)
		if connectErr != nil {
			return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, connectErr)
		}

		defer conn.Close()

		js, jsErr := conn.JetStream()
		if jsErr != nil {
			return fmt.Errorf("failed to open JetStream context: %w", jsErr)
		}

		store, storeErr := objectstore.New(js, cfg.NATS.AudioObjectStoreBucket)
		if storeErr != nil {
			return fmt.Errorf("failed to open object store: %w", storeErr)
		}

		jobWorker := worker.New(
			conn,
			cfg.NATS.SynthesisSubject,
			cfg.NATS.AudioCreatedSubject,
			store,
			speaker,
			log,
		)

		go func() {
			runErr := jobWorker.Run(ctx)
			if runErr != nil {
				log.Error("NATS worker stopped: %v", runErr)
			}
		}()
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(port))

	return server.New(speaker, log).ListenAndServe(ctx, addr)
}

func main() {
	err := newRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
