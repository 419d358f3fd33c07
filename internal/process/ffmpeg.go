package process

import (
	"strconv"
	"strings"
)

// CaptureConfig describes an ffmpeg run that samples frames from a stream
// into image files.
type CaptureConfig struct {
	// BinaryName is the program identifier for ffmpeg.
	BinaryName string

	// StreamURL is the input to sample.
	StreamURL string

	// LogLevel is the ffmpeg log level (error, warning, info, ...).
	LogLevel string

	// FrameRate is how many frames per second are written.
	FrameRate int

	// OutputPattern is the image2 output pattern, e.g. "frame_%04d.jpg".
	OutputPattern string
}

// DefaultCaptureConfig returns a config writing one frame per second of
// streamURL to outputPattern.
func DefaultCaptureConfig(streamURL, outputPattern string) *CaptureConfig {
	return &CaptureConfig{
		BinaryName:    "ffmpeg",
		StreamURL:     streamURL,
		LogLevel:      "error",
		FrameRate:     1,
		OutputPattern: outputPattern,
	}
}

// Args returns the ffmpeg arguments, unquoted.
func (c *CaptureConfig) Args() []string {
	logLevel := c.LogLevel
	if logLevel == "" {
		logLevel = "error"
	}
	rate := c.FrameRate
	if rate < 1 {
		rate = 1
	}

	return []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", logLevel,
		// Overwrite frames left by a probe that could not be purged
		"-y",
		"-i", c.StreamURL,
		"-vf", "fps=" + strconv.Itoa(rate),
		c.OutputPattern,
	}
}

// CommandString returns the command that would be executed (for debugging).
func (c *CaptureConfig) CommandString() string {
	return c.BinaryName + " " + strings.Join(c.Args(), " ")
}
