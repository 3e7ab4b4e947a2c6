// Package config loads bgstrip settings from defaults, an optional TOML
// file, BGSTRIP_* environment variables and bound command-line flags, in
// increasing order of precedence.
package config

import "time"

type Config struct {
	Input     InputConfig     `mapstructure:"input"`
	Output    OutputConfig    `mapstructure:"output"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Inference InferenceConfig `mapstructure:"inference"`
	BiRefNet  BiRefNetConfig  `mapstructure:"birefnet"`
	Server    ServerConfig    `mapstructure:"server"`
	Watch     WatchConfig     `mapstructure:"watch"`
}

type InputConfig struct {
	Dir string `mapstructure:"dir"`
}

type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// LimitsConfig is the decode budget applied to every input file.
type LimitsConfig struct {
	MaxFileBytes int64 `mapstructure:"max_file_bytes"`
	MaxPixels    int64 `mapstructure:"max_pixels"`
}

type PipelineConfig struct {
	// Workers is the number of concurrent validation/decode goroutines,
	// 0 means one per CPU.
	Workers  int `mapstructure:"workers"`
	MaxDepth int `mapstructure:"max_depth"`
}

type InferenceConfig struct {
	Backend     string        `mapstructure:"backend"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Concurrency int           `mapstructure:"concurrency"`
	MaskSize    int           `mapstructure:"mask_size"`
}

type BiRefNetConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// WatchConfig selects the trigger for repeated runs. A non-empty Schedule
// is a cron expression; otherwise changes to the input directory trigger
// a run after Debounce of quiet.
type WatchConfig struct {
	Schedule string        `mapstructure:"schedule"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// Inference backends.
const (
	BackendChroma   = "chroma"
	BackendOpaque   = "opaque"
	BackendBiRefNet = "birefnet"
)
