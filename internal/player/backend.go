package player

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies a renderer back-end.
type Kind int

const (
	// FFplay is the renderer shipped alongside ffmpeg. It is used when a
	// player directory is configured.
	FFplay Kind = iota

	// OMXPlayer is the low-resource hardware-accelerated renderer, found
	// through the shell.
	OMXPlayer
)

// String returns the back-end's program name.
func (k Kind) String() string {
	switch k {
	case FFplay:
		return "ffplay"
	case OMXPlayer:
		return "omxplayer"
	default:
		return "unknown"
	}
}

// Test mode window geometry.
const (
	TestWindowWidth  = 640
	TestWindowHeight = 360
)

// Backend is a renderer variant: which program to run, how to find it and
// how to spell its arguments.
type Backend struct {
	Kind    Kind
	Program string
	Mode    Mode

	args func(media string, loop, testMode bool) []string
}

var (
	ffplayBackend = Backend{
		Kind:    FFplay,
		Program: "ffplay",
		Mode:    ExplicitPath,
		args:    ffplayArgs,
	}

	omxplayerBackend = Backend{
		Kind:    OMXPlayer,
		Program: "omxplayer",
		Mode:    ShellLookup,
		args:    omxplayerArgs,
	}
)

// SelectBackend returns ffplay in ExplicitPath mode when playerDir is set,
// omxplayer in ShellLookup mode otherwise.
func SelectBackend(playerDir string) Backend {
	if playerDir != "" {
		return ffplayBackend
	}
	return omxplayerBackend
}

// Backends lists every supported renderer.
func Backends() []Backend {
	return []Backend{ffplayBackend, omxplayerBackend}
}

// Args builds the argument string for media. extra is appended unchanged.
func (b Backend) Args(media string, loop, testMode bool, extra string) string {
	s := JoinArgs(b.args(media, loop, testMode)...)
	if extra = strings.TrimSpace(extra); extra != "" {
		s += " " + extra
	}
	return s
}

func ffplayArgs(media string, loop, testMode bool) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}

	if testMode {
		args = append(args,
			"-x", strconv.Itoa(TestWindowWidth),
			"-y", strconv.Itoa(TestWindowHeight),
			"-left", "0", "-top", "0",
		)
	} else {
		args = append(args, "-fs")
	}

	if loop {
		// 0 loops forever
		args = append(args, "-loop", "0")
	}

	return append(args, media)
}

func omxplayerArgs(media string, loop, testMode bool) []string {
	args := []string{"--no-osd"}

	if testMode {
		args = append(args, "--win", fmt.Sprintf("0 0 %d %d", TestWindowWidth, TestWindowHeight))
	} else {
		// Blank the background behind the video.
		args = append(args, "-b")
	}

	if loop {
		args = append(args, "--loop")
	}

	return append(args, media)
}
