// Package preflight provides startup validation checks.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/randomizedcoder/go-livestream-viewer/internal/player"
	"github.com/randomizedcoder/go-livestream-viewer/internal/process"
	"github.com/randomizedcoder/go-livestream-viewer/internal/state"
)

// versionTimeout bounds the `ffmpeg -version` call.
const versionTimeout = 5 * time.Second

// Check represents the result of a single preflight check.
type Check struct {
	Name    string // Name of the check
	Passed  bool   // Whether the check passed
	Warning bool   // True if it's a warning (non-fatal)
	Message string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Options describes what the viewer needs at startup.
type Options struct {
	// PlayerDir holds the capture and renderer binaries in ExplicitPath
	// mode. Empty means both are looked up on PATH.
	PlayerDir string

	// Renderer is the player program of the selected back-end.
	Renderer string

	// Capture is the frame capture program.
	Capture string

	VideoPath      string
	VideoExtension string

	// ProbeDir is where captured frames are written.
	ProbeDir string

	// Table, if set, is used to warn about leftover player processes.
	Table process.Table
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks. Warnings never fail the result.
func RunAll(ctx context.Context, opts Options) *Result {
	if opts.Capture == "" {
		opts.Capture = "ffmpeg"
	}

	checks := []Check{
		checkCapture(ctx, opts.PlayerDir, opts.Capture),
		checkRenderer(opts.PlayerDir, opts.Renderer),
	}
	for _, s := range state.Targets {
		if s.Loops() {
			checks = append(checks, checkVideo(opts.VideoPath, s, opts.VideoExtension))
		}
	}
	checks = append(checks, checkProbeDir(opts.ProbeDir))
	if opts.Table != nil {
		checks = append(checks, checkLeftovers(ctx, opts.Table, opts.Capture, opts.Renderer))
	}

	result := &Result{Checks: checks, Passed: true}
	for _, c := range checks {
		if !c.Passed {
			result.Passed = false
		}
	}
	return result
}

// Failed returns the names of the checks that did not pass.
func (r *Result) Failed() []string {
	var names []string
	for _, c := range r.Checks {
		if !c.Passed {
			names = append(names, c.Name)
		}
	}
	return names
}

// findProgram resolves program inside dir, or on PATH when dir is empty.
func findProgram(dir, program string) (string, error) {
	if dir != "" {
		return process.Locate(dir, program)
	}
	return exec.LookPath(program)
}

// checkCapture verifies the capture program is available and working.
func checkCapture(ctx context.Context, dir, program string) Check {
	name := program
	path, err := findProgram(dir, program)
	if err != nil {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("not found: %v", err),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("found at %s but -version failed: %v", path, err),
		}
	}

	return Check{
		Name:    name,
		Passed:  true,
		Message: fmt.Sprintf("found at %s (version %s)", path, parseVersion(string(output))),
	}
}

// parseVersion extracts the version from "ffmpeg version 6.1 Copyright ...".
func parseVersion(output string) string {
	first, _, _ := strings.Cut(output, "\n")
	parts := strings.Fields(first)
	if len(parts) >= 3 && parts[1] == "version" {
		return parts[2]
	}
	return "unknown"
}

// checkRenderer verifies the player program can be found.
func checkRenderer(dir, program string) Check {
	if program == "" {
		return Check{Name: "renderer", Passed: false, Message: "no renderer selected"}
	}

	path, err := findProgram(dir, program)
	if err != nil {
		return Check{
			Name:    program,
			Passed:  false,
			Message: fmt.Sprintf("not found: %v", err),
		}
	}
	return Check{
		Name:    program,
		Passed:  true,
		Message: "found at " + path,
	}
}

// checkVideo verifies the placeholder video for s exists.
func checkVideo(videoPath string, s state.State, ext string) Check {
	path := player.MediaPath(videoPath, s, ext)
	name := "video_" + strings.ToLower(s.String())

	info, err := os.Stat(path)
	switch {
	case err != nil:
		return Check{Name: name, Passed: false, Message: fmt.Sprintf("%s: %v", path, err)}
	case info.IsDir():
		return Check{Name: name, Passed: false, Message: path + " is a directory"}
	case info.Size() == 0:
		return Check{Name: name, Passed: true, Warning: true, Message: path + " is empty"}
	}
	return Check{Name: name, Passed: true, Message: path}
}

// checkProbeDir verifies captured frames can be written.
func checkProbeDir(dir string) Check {
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		return Check{
			Name:    "probe_directory",
			Passed:  false,
			Message: fmt.Sprintf("%s not writable: %v", dir, err),
		}
	}
	name := f.Name()
	f.Close()
	os.Remove(name)

	return Check{Name: "probe_directory", Passed: true, Message: dir + " writable"}
}

// checkLeftovers warns about player or capture processes that the startup
// sweep will kill.
func checkLeftovers(ctx context.Context, table process.Table, names ...string) Check {
	procs, err := table.Processes(ctx)
	if err != nil {
		return Check{
			Name:    "leftover_processes",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to list processes: %v", err),
		}
	}

	self := int32(os.Getpid())
	var found []string
	for _, p := range procs {
		if p.PID != self && process.MatchName(p.Name, names) {
			found = append(found, fmt.Sprintf("%s[%d]", p.Name, p.PID))
		}
	}

	if len(found) == 0 {
		return Check{Name: "leftover_processes", Passed: true, Message: "none"}
	}
	return Check{
		Name:    "leftover_processes",
		Passed:  true,
		Warning: true,
		Message: fmt.Sprintf("%d will be killed at startup: %s", len(found), strings.Join(found, ", ")),
	}
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch {
	case name == "ffmpeg":
		return "install ffmpeg (apt install ffmpeg) or place it in -player-path"
	case name == "ffplay":
		return "place ffplay next to ffmpeg in -player-path"
	case name == "omxplayer":
		return "install omxplayer or set -player-path to use ffplay"
	case strings.HasPrefix(name, "video_"):
		return "add the placeholder video to video_path"
	case name == "probe_directory":
		return "set -probe-dir to a writable directory"
	default:
		return "see documentation"
	}
}
