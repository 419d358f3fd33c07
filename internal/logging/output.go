package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single output line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the number of recent lines kept per subprocess.
	MaxBufferedLines = 50
)

// OutputHandler receives the stderr stream of a capture or player subprocess.
// It is an io.Writer so it can be assigned to exec.Cmd.Stderr directly.
// Complete lines are kept in a ring buffer and logged as subprocess_output.
type OutputHandler struct {
	program string
	logger  *slog.Logger

	mu      sync.Mutex
	pid     int
	partial []byte
	buffer  []string
	bufIdx  int
}

// NewOutputHandler creates a handler for the named program.
func NewOutputHandler(program string, logger *slog.Logger) *OutputHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutputHandler{
		program: program,
		logger:  logger,
		buffer:  make([]string, MaxBufferedLines),
	}
}

// SetPID attaches the process id to subsequent log entries.
func (h *OutputHandler) SetPID(pid int) {
	h.mu.Lock()
	h.pid = pid
	h.mu.Unlock()
}

// Write implements io.Writer. Incomplete trailing data is held until the
// next newline or Flush.
func (h *OutputHandler) Write(p []byte) (int, error) {
	h.mu.Lock()
	h.partial = append(h.partial, p...)
	var lines []string
	for {
		idx := bytes.IndexByte(h.partial, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, strings.TrimRight(string(h.partial[:idx]), "\r"))
		h.partial = h.partial[idx+1:]
	}
	// ffmpeg rewrites status lines with bare carriage returns
	if len(h.partial) > MaxLineLength {
		lines = append(lines, string(h.partial))
		h.partial = h.partial[:0]
	}
	h.mu.Unlock()

	for _, line := range lines {
		h.HandleLine(line)
	}
	return len(p), nil
}

// Flush handles any buffered partial line.
func (h *OutputHandler) Flush() {
	h.mu.Lock()
	rest := strings.TrimRight(string(h.partial), "\r")
	h.partial = h.partial[:0]
	h.mu.Unlock()

	if rest != "" {
		h.HandleLine(rest)
	}
}

// HandleLine records and logs a single line of output.
func (h *OutputHandler) HandleLine(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	h.mu.Lock()
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % MaxBufferedLines
	pid := h.pid
	h.mu.Unlock()

	h.logger.Log(context.Background(), classifyLine(line), "subprocess_output",
		"program", h.program,
		"pid", pid,
		"line", line,
	)
}

// classifyLine picks a log level from the line content.
func classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	for _, pattern := range ErrorPatterns {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return slog.LevelWarn
		}
	}
	if strings.Contains(lower, "[error]") || strings.Contains(lower, "[warning]") {
		return slog.LevelWarn
	}

	return slog.LevelDebug
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (h *OutputHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	n = min(max(n, 0), MaxBufferedLines)

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		if h.buffer[idx] != "" {
			lines = append(lines, h.buffer[idx])
		}
	}

	return lines
}

// ErrorPatterns are the output fragments that indicate the capture or player
// could not reach or decode its input.
var ErrorPatterns = []string{
	"Connection refused",
	"Connection timed out",
	"Server returned",
	"Input/output error",
	"No such file or directory",
	"Invalid data found",
	"End of file",
	"Failed to",
}

// CountErrors counts occurrences of error patterns in the buffered lines.
func (h *OutputHandler) CountErrors() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	counts := make(map[string]int)
	for _, line := range h.buffer {
		if line == "" {
			continue
		}
		for _, pattern := range ErrorPatterns {
			if strings.Contains(line, pattern) {
				counts[pattern]++
			}
		}
	}

	return counts
}
