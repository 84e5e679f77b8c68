package synth

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavBitDepth = 16
	wavChannels = 1

	int16Max = 32767
)

// ErrNoSamples is returned when a waveform with no samples reaches encoding.
var ErrNoSamples = errors.New("no samples to encode")

// encodeWAV encodes a flat mono waveform into a WAV byte buffer at the given
// sample rate. Samples are clamped to [-1, 1] and quantized to 16-bit PCM.
// The encoder needs a seekable writer for the header, so the container is
// staged through a temp file and read back.
func encodeWAV(samples []float64, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	intData := make([]int, len(samples))
	for i, sample := range samples {
		clamped := math.Max(-1.0, math.Min(1.0, sample))
		intData[i] = int(clamped * int16Max)
	}

	tempFile, err := os.CreateTemp("", "xtts-encode-*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file for wav encoding: %w", err)
	}

	tempPath := tempFile.Name()

	defer func() {
		_ = os.Remove(tempPath)
	}()

	encodeErr := writeEncoded(tempFile, intData, sampleRate)

	closeErr := tempFile.Close()
	if encodeErr != nil {
		return nil, encodeErr
	}

	if closeErr != nil {
		return nil, fmt.Errorf("failed to close temp wav file: %w", closeErr)
	}

	data, readErr := os.ReadFile(tempPath)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read encoded wav: %w", readErr)
	}

	return data, nil
}

func writeEncoded(file *os.File, intData []int, sampleRate int) error {
	encoder := wav.NewEncoder(file, sampleRate, wavBitDepth, wavChannels, 1)

	buffer := &audio.IntBuffer{
		Data: intData,
		Format: &audio.Format{
			NumChannels: wavChannels,
			SampleRate:  sampleRate,
		},
		SourceBitDepth: wavBitDepth,
	}

	writeErr := encoder.Write(buffer)
	if writeErr != nil {
		return fmt.Errorf("failed to write wav data: %w", writeErr)
	}

	closeErr := encoder.Close()
	if closeErr != nil {
		return fmt.Errorf("failed to finalize wav container: %w", closeErr)
	}

	return nil
}
