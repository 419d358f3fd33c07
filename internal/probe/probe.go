// Package probe decides whether the livestream is up by letting ffmpeg
// sample frames from it for a grace period and counting what lands on disk.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/randomizedcoder/go-livestream-viewer/internal/player"
	"github.com/randomizedcoder/go-livestream-viewer/internal/process"
	"github.com/randomizedcoder/go-livestream-viewer/internal/retry"
)

const (
	// FramePrefix starts the name of every captured frame file.
	FramePrefix = "lsv_frame_"

	// FrameExt is the extension of captured frame files.
	FrameExt = ".jpg"

	// recentOutputLines is how much capture output is logged on failure.
	recentOutputLines = 10
)

// FramePattern is the ffmpeg output pattern for captured frames.
var FramePattern = FramePrefix + "%04d" + FrameExt

// Spawner starts and stops untracked helper processes.
type Spawner interface {
	Spawn(cmd player.Command, workDir string) (*process.Handle, error)
	Terminate(h *process.Handle) error
}

// Config holds configuration for creating a Prober.
type Config struct {
	// Dir is where the capture runs and frames are written.
	Dir string

	// GracePeriod is how long one capture attempt runs.
	GracePeriod time.Duration

	// Retries is the number of capture attempts per probe (minimum 1).
	Retries int

	// PlayerDir selects ExplicitPath mode for ffmpeg when set.
	PlayerDir string

	Logger *slog.Logger
}

// Result is the outcome of one probe.
type Result struct {
	Healthy  bool
	Frames   int
	Attempts int
	Duration time.Duration
	Err      error
}

// Prober runs stream probes. Probes must not overlap.
type Prober struct {
	dir       string
	grace     time.Duration
	retries   int
	playerDir string
	spawner   Spawner
	logger    *slog.Logger
}

// New creates a Prober that launches captures through spawner.
func New(cfg Config, spawner Spawner) *Prober {
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Prober{
		dir:       cfg.Dir,
		grace:     cfg.GracePeriod,
		retries:   cfg.Retries,
		playerDir: cfg.PlayerDir,
		spawner:   spawner,
		logger:    cfg.Logger,
	}
}

// IsStreamHealthy reports whether a capture of url produced at least one
// frame. Every failure yields false.
func (p *Prober) IsStreamHealthy(ctx context.Context, url string) bool {
	return p.Probe(ctx, url).Healthy
}

// Probe purges old frames, runs capture attempts under the retry policy
// and then counts frames. The frame count alone decides health; attempt
// outcomes only decide whether to retry.
func (p *Prober) Probe(ctx context.Context, url string) Result {
	start := time.Now()
	res := p.run(ctx, url)
	res.Duration = time.Since(start)

	if res.Err != nil {
		p.logger.Warn("probe_failed",
			"url", url,
			"attempts", res.Attempts,
			"duration", res.Duration,
			"error", res.Err,
		)
		res.Healthy = false
		return res
	}

	p.logger.Info("probe_completed",
		"url", url,
		"healthy", res.Healthy,
		"frames", res.Frames,
		"attempts", res.Attempts,
		"duration", res.Duration,
	)
	return res
}

func (p *Prober) run(ctx context.Context, url string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("probe panic: %v", r)
		}
	}()

	purged, err := PurgeFrames(p.dir)
	if err != nil {
		res.Err = fmt.Errorf("purge frames: %w", err)
		return res
	}
	if purged > 0 {
		p.logger.Debug("probe_frames_purged", "dir", p.dir, "count", purged)
	}

	policy := retry.Policy{
		MaxAttempts: p.retries,
		Name:        "stream_probe",
		Logger:      p.logger,
	}
	policy.Run(ctx, func(ctx context.Context) (bool, error) {
		res.Attempts++
		return p.attempt(ctx, url, res.Attempts)
	})

	frames, err := CountFrames(p.dir)
	if err != nil {
		res.Err = fmt.Errorf("count frames: %w", err)
		return res
	}

	res.Frames = frames
	res.Healthy = frames > 0
	return res
}

// attempt runs one capture for the grace period. It succeeds if the
// capture is still running when the grace period ends or exited with code
// 0 before that.
func (p *Prober) attempt(ctx context.Context, url string, n int) (bool, error) {
	cmd := CaptureCommand(url, p.playerDir)

	h, err := p.spawner.Spawn(cmd, p.dir)
	if err != nil {
		return false, fmt.Errorf("start capture: %w", err)
	}

	timer := time.NewTimer(p.grace)
	defer timer.Stop()

	select {
	case <-h.Done():
		code := h.ExitCode()
		if code != 0 {
			p.logger.Info("capture_exited_early",
				"url", url,
				"attempt", n,
				"pid", h.PID(),
				"exit_code", code,
				"output", h.RecentOutput(recentOutputLines),
			)
			return false, nil
		}
		p.logger.Debug("capture_completed", "url", url, "attempt", n, "pid", h.PID())
		return true, nil

	case <-timer.C:
		p.stop(h)
		return true, nil

	case <-ctx.Done():
		p.logger.Debug("capture_cancelled", "url", url, "attempt", n, "pid", h.PID())
		p.stop(h)
		return false, nil
	}
}

func (p *Prober) stop(h *process.Handle) {
	if err := p.spawner.Terminate(h); err != nil {
		p.logger.Warn("capture_stop_error", "pid", h.PID(), "error", err)
	}
}

// CaptureCommand returns the ffmpeg command that samples url into frame
// files. It uses ExplicitPath mode when playerDir is set.
func CaptureCommand(url, playerDir string) player.Command {
	cc := process.DefaultCaptureConfig(url, FramePattern)

	mode := player.ShellLookup
	if playerDir != "" {
		mode = player.ExplicitPath
	}

	return player.Command{
		Program: cc.BinaryName,
		Args:    player.JoinArgs(cc.Args()...),
		Mode:    mode,
		Media:   url,
	}
}

// IsFrameFile reports whether name is a captured frame.
func IsFrameFile(name string) bool {
	return strings.HasPrefix(name, FramePrefix) && strings.HasSuffix(strings.ToLower(name), FrameExt)
}

// PurgeFrames deletes captured frame files in dir and returns how many
// were removed. Other files are left alone.
func PurgeFrames(dir string) (int, error) {
	names, err := frameFiles(dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, name := range names {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// CountFrames returns the number of captured frame files in dir.
func CountFrames(dir string) (int, error) {
	names, err := frameFiles(dir)
	return len(names), err
}

func frameFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsFrameFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
