// Package config provides configuration management for livestream-viewer.
package config

import "time"

// Config holds all settings for one run. It is loaded once at startup and
// not modified afterwards.
type Config struct {
	// Sources
	LivestreamURL         string `yaml:"livestream_url"`
	EvaluateLivestreamURL bool   `yaml:"evaluate_livestream_url"`
	InternetTestURL       string `yaml:"internet_test_url"`
	VideoPath             string `yaml:"video_path"`
	VideoExtension        string `yaml:"video_extension"`

	// Player
	VideoPlayerPath      string `yaml:"video_player_path"`
	VideoPlayerArguments string `yaml:"video_player_arguments"`
	TestModeEnabled      bool   `yaml:"-"`

	// Health check (seconds)
	HealthCheckGracePeriod int    `yaml:"health_check_grace_period"`
	HealthCheckDelay       int    `yaml:"health_check_delay"`
	HealthCheckRetries     int    `yaml:"health_check_retries"`
	ProbeDirectory         string `yaml:"probe_directory"`

	// Process control
	StopTimeout time.Duration `yaml:"stop_timeout"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// Observability
	MetricsAddr string `yaml:"metrics_addr"`
	LogFormat   string `yaml:"log_format"`
	Verbose     bool   `yaml:"-"`
	TUIEnabled  bool   `yaml:"-"`

	// Diagnostic modes
	ConfigPath      string `yaml:"-"`
	PrintCmd        bool   `yaml:"-"`
	SkipPreflight   bool   `yaml:"-"`
	StrictPreflight bool   `yaml:"-"` // failed preflight checks abort the run
}

// DefaultConfigPath is the settings file read when -config is not given.
const DefaultConfigPath = "livestream-viewer.yaml"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		InternetTestURL: "https://www.google.com/",
		VideoPath:       "video",
		VideoExtension:  "mp4",

		HealthCheckGracePeriod: 30,
		HealthCheckDelay:       30,
		HealthCheckRetries:     1,
		ProbeDirectory:         ".",

		StopTimeout: 5 * time.Second,
		HTTPTimeout: 10 * time.Second,

		MetricsAddr: "127.0.0.1:17095",
		LogFormat:   "json",

		ConfigPath: DefaultConfigPath,
	}
}

// GracePeriod returns how long a capture runs during one probe attempt.
func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.HealthCheckGracePeriod) * time.Second
}

// PollDelay returns the idle time between control loop iterations.
func (c *Config) PollDelay() time.Duration {
	return time.Duration(c.HealthCheckDelay) * time.Second
}

// ExplicitPlayerPath reports whether player binaries are located inside
// VideoPlayerPath rather than looked up by the shell.
func (c *Config) ExplicitPlayerPath() bool {
	return c.VideoPlayerPath != ""
}
