package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Any error here is fatal: the control loop must not start.
func Validate(cfg *Config) error {
	var errs []error

	// Livestream URL is required (unless --print-cmd)
	if cfg.LivestreamURL == "" {
		if !cfg.PrintCmd {
			errs = append(errs, ValidationError{
				Field:   "livestream_url",
				Message: "livestream URL is required",
			})
		}
	} else if err := validateAbsoluteURL(cfg.LivestreamURL); err != nil {
		errs = append(errs, ValidationError{
			Field:   "livestream_url",
			Message: err.Error(),
		})
	}

	if err := validateHTTPURL(cfg.InternetTestURL); err != nil {
		errs = append(errs, ValidationError{
			Field:   "internet_test_url",
			Message: err.Error(),
		})
	}

	if cfg.VideoPath == "" {
		errs = append(errs, ValidationError{
			Field:   "video_path",
			Message: "must not be empty",
		})
	}

	switch {
	case cfg.VideoExtension == "":
		errs = append(errs, ValidationError{
			Field:   "video_extension",
			Message: "must not be empty",
		})
	case strings.HasPrefix(cfg.VideoExtension, "."):
		errs = append(errs, ValidationError{
			Field:   "video_extension",
			Message: fmt.Sprintf("must not start with a dot (got %q)", cfg.VideoExtension),
		})
	}

	if cfg.VideoPlayerPath != "" {
		info, err := os.Stat(cfg.VideoPlayerPath)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   "video_player_path",
				Message: err.Error(),
			})
		} else if !info.IsDir() {
			errs = append(errs, ValidationError{
				Field:   "video_player_path",
				Message: "must be a directory",
			})
		}
	}

	if cfg.HealthCheckGracePeriod < 1 {
		errs = append(errs, ValidationError{
			Field:   "health_check_grace_period",
			Message: "must be at least 1 second",
		})
	}

	if cfg.HealthCheckDelay < 0 {
		errs = append(errs, ValidationError{
			Field:   "health_check_delay",
			Message: "must not be negative",
		})
	}

	if cfg.HealthCheckRetries < 0 {
		errs = append(errs, ValidationError{
			Field:   "health_check_retries",
			Message: "must not be negative",
		})
	}

	if cfg.ProbeDirectory == "" {
		errs = append(errs, ValidationError{
			Field:   "probe_directory",
			Message: "must not be empty",
		})
	}

	if cfg.StopTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "stop_timeout",
			Message: "must be positive",
		})
	}

	if cfg.HTTPTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "http_timeout",
			Message: "must be positive",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// validateAbsoluteURL checks that rawURL parses as an absolute URI.
// Any scheme is accepted (rtmp, rtsp, srt, http, ...).
func validateAbsoluteURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if !u.IsAbs() {
		return fmt.Errorf("URL must be absolute (got %q)", rawURL)
	}
	if u.Host == "" && u.Opaque == "" {
		return errors.New("URL must have a host")
	}
	return nil
}

// validateHTTPURL checks that rawURL is an absolute http or https URL.
func validateHTTPURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https (got %q)", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must have a host")
	}

	return nil
}
