// main package for xtts-client, a small command-line caller for a running
// xtts-server instance.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/xtts-server/internal/client"
)

// Flag names and descriptions.
const (
	flagAddr       = "addr"
	flagText       = "text"
	flagOutput     = "output"
	flagHealth     = "health"
	flagAddrDesc   = "Base URL of the xtts-server instance"
	flagTextDesc   = "Text to convert to speech"
	flagOutputDesc = "Output file path (.wav)"
	flagHealthDesc = "Check server health and exit"
)

// Defaults.
const (
	defaultAddr    = "http://localhost:5050"
	defaultOutput  = "output.wav"
	requestTimeout = 5 * time.Minute

	outputFilePermissions = 0o600
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	addr   string
	text   string
	output string
	health bool
}

func parseFlags() *appFlags {
	flags := &appFlags{}

	flag.StringVar(&flags.addr, flagAddr, defaultAddr, flagAddrDesc)
	flag.StringVar(&flags.text, flagText, "", flagTextDesc)
	flag.StringVar(&flags.output, flagOutput, defaultOutput, flagOutputDesc)
	flag.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	flag.Parse()

	return flags
}

func run(flags *appFlags) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	api := client.New(flags.addr, requestTimeout)

	if flags.health {
		healthErr := api.Health(ctx)
		if healthErr != nil {
			return healthErr
		}

		fmt.Println("Server is healthy")

		return nil
	}

	if flags.text == "" {
		return fmt.Errorf("%w: --text is required", client.ErrTextEmpty)
	}

	audioData, synthErr := api.Synthesize(ctx, flags.text)
	if synthErr != nil {
		return synthErr
	}

	writeErr := os.WriteFile(flags.output, audioData, outputFilePermissions)
	if writeErr != nil {
		return fmt.Errorf("failed to write output file: %w", writeErr)
	}

	fmt.Printf("Generated: %s (%d bytes)\n", flags.output, len(audioData))

	return nil
}

func main() {
	err := run(parseFlags())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
