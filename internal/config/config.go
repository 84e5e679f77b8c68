// Package config provides the configuration structure for xtts-server.
//
// The command-line flags cover the per-invocation choices (reference audio,
// language, port, mode); everything about the engine and the optional NATS
// front end lives here and is loaded through the central configurator.
package config

import (
	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Default values used when no project configuration is found or a field is
// left unset. The conditioning window constants match the XTTS v2 defaults.
const (
	DefaultEngineCommand   = "xtts-helper"
	DefaultModelName       = "tts_models/multilingual/multi-dataset/xtts_v2"
	DefaultDevice          = "cpu"
	DefaultGPTCondLen      = 30
	DefaultGPTCondChunkLen = 4
	DefaultMaxRefLength    = 60
	DefaultHost            = "0.0.0.0"
	DefaultBaseLogsDir     = "/tmp/xtts-server/logs"
)

// EngineConfig holds the settings for the speech engine helper process.
type EngineConfig struct {
	Command         string `toml:"command"`
	ModelName       string `toml:"model_name"`
	Device          string `toml:"device"`
	GPTCondLen      int    `toml:"gpt_cond_len"`
	GPTCondChunkLen int    `toml:"gpt_cond_chunk_len"`
	MaxRefLength    int    `toml:"max_ref_length"`

	// DisableNormalization turns off the text cleanup pass. The flag is
	// inverted so the unset value keeps normalization on.
	DisableNormalization bool `toml:"disable_normalization"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `toml:"host"`
}

// NATSConfig holds the settings for the optional NATS job front end.
type NATSConfig struct {
	Enabled                bool   `toml:"enabled"`
	URL                    string `toml:"url"`
	SynthesisSubject       string `toml:"synthesis_subject"`
	AudioCreatedSubject    string `toml:"audio_created_subject"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Engine EngineConfig `toml:"engine"`
	Server ServerConfig `toml:"server"`
	NATS   NATSConfig   `toml:"nats"`
	Paths  PathsConfig  `toml:"paths"`
}

// Default returns the built-in configuration used when no project
// configuration can be located.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Command:         DefaultEngineCommand,
			ModelName:       DefaultModelName,
			Device:          DefaultDevice,
			GPTCondLen:      DefaultGPTCondLen,
			GPTCondChunkLen: DefaultGPTCondChunkLen,
			MaxRefLength:    DefaultMaxRefLength,
		},
		Server: ServerConfig{
			Host: DefaultHost,
		},
		NATS: NATSConfig{
			Enabled:                false,
			URL:                    "",
			SynthesisSubject:       "",
			AudioCreatedSubject:    "",
			AudioObjectStoreBucket: "",
		},
		Paths: PathsConfig{
			BaseLogsDir: DefaultBaseLogsDir,
		},
	}
}

// Load loads the configuration through the central configurator. A server is
// expected to run without any project configuration at all, so a load failure
// is not fatal: the built-in defaults are returned instead.
func Load(log *logger.Logger) *Config {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		log.Warn("No project configuration found, using defaults: %v", err)

		return Default()
	}

	applyDefaults(&cfg)

	return &cfg
}

// applyDefaults fills any field the project configuration left unset.
func applyDefaults(cfg *Config) {
	if cfg.Engine.Command == "" {
		cfg.Engine.Command = DefaultEngineCommand
	}

	if cfg.Engine.ModelName == "" {
		cfg.Engine.ModelName = DefaultModelName
	}

	if cfg.Engine.Device == "" {
		cfg.Engine.Device = DefaultDevice
	}

	if cfg.Engine.GPTCondLen == 0 {
		cfg.Engine.GPTCondLen = DefaultGPTCondLen
	}

	if cfg.Engine.GPTCondChunkLen == 0 {
		cfg.Engine.GPTCondChunkLen = DefaultGPTCondChunkLen
	}

	if cfg.Engine.MaxRefLength == 0 {
		cfg.Engine.MaxRefLength = DefaultMaxRefLength
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultHost
	}

	if cfg.Paths.BaseLogsDir == "" {
		cfg.Paths.BaseLogsDir = DefaultBaseLogsDir
	}
}
