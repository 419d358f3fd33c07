// Package player maps a target viewer state to the renderer invocation that
// displays it. Resolution is pure: nothing here starts a process.
package player

import (
	"errors"
	"fmt"
	"strings"

	"github.com/randomizedcoder/go-livestream-viewer/internal/state"
)

// ErrUnresolvableState is returned when Resolve is asked for a state that
// has no media, i.e. state.Unset.
var ErrUnresolvableState = errors.New("state has no player command")

// Mode is how a command's program is found at launch time.
type Mode int

const (
	// ExplicitPath locates the program as a file inside the configured
	// player directory and runs it directly.
	ExplicitPath Mode = iota

	// ShellLookup hands "<program> <args>" to the system shell, which
	// resolves the program through PATH.
	ShellLookup
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ExplicitPath:
		return "explicit-path"
	case ShellLookup:
		return "shell-lookup"
	default:
		return "unknown"
	}
}

// Command describes one external program invocation.
type Command struct {
	// Program is the program identifier: a file name fragment in
	// ExplicitPath mode, a command name in ShellLookup mode.
	Program string

	// Args is the argument string, already quoted.
	Args string

	Mode Mode

	// Media is the URL or file the command plays.
	Media string

	// Loop reports whether the media repeats forever.
	Loop bool
}

// String returns the command line as it would be typed.
func (c Command) String() string {
	if c.Args == "" {
		return c.Program
	}
	return c.Program + " " + c.Args
}

// Options holds the inputs Resolve needs from the run configuration.
type Options struct {
	// LiveURL is the livestream URL, already redirect-resolved if enabled.
	LiveURL string

	VideoPath      string
	VideoExtension string

	// PlayerDir enables ExplicitPath mode when non-empty.
	PlayerDir string

	TestMode bool

	// ExtraArgs are appended verbatim to every player command.
	ExtraArgs string
}

// Resolve returns the player command that shows s.
//
// Livestream plays LiveURL once; OffAir and Offline loop the static video
// for that state. Unset yields ErrUnresolvableState.
func Resolve(s state.State, opts Options) (Command, error) {
	var (
		media string
		loop  bool
	)

	switch s {
	case state.Livestream:
		media = opts.LiveURL
	case state.OffAir, state.Offline:
		media = MediaPath(opts.VideoPath, s, opts.VideoExtension)
		loop = true
	default:
		return Command{}, fmt.Errorf("%w: %s", ErrUnresolvableState, s)
	}

	b := SelectBackend(opts.PlayerDir)
	return Command{
		Program: b.Program,
		Args:    b.Args(media, loop, opts.TestMode, opts.ExtraArgs),
		Mode:    b.Mode,
		Media:   media,
		Loop:    loop,
	}, nil
}

// MediaPath returns the static video for s: "{videoPath}/{State}.{ext}",
// joined with a forward slash on every platform.
func MediaPath(videoPath string, s state.State, ext string) string {
	return strings.TrimRight(videoPath, `/\`) + "/" + s.String() + "." + ext
}

// shellSpecial lists characters that end or alter a word in sh and in
// shellwords.Parse.
const shellSpecial = " \t\r\n\"'\\`$&;|<>()*?[]{}#~!"

// Quote returns token as a single shell word. Tokens containing whitespace
// or shell metacharacters, and the empty token, are wrapped in double
// quotes with \, ", $ and ` escaped.
func Quote(token string) string {
	if token != "" && !strings.ContainsAny(token, shellSpecial) {
		return token
	}
	return `"` + quoteEscaper.Replace(token) + `"`
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "$", `\$`, "`", "\\`")

// JoinArgs joins argument tokens into an argument string, quoting each.
func JoinArgs(tokens ...string) string {
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = Quote(t)
	}
	return strings.Join(quoted, " ")
}
