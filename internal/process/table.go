package process

import (
	"context"
	"fmt"
	"strings"

	psutil "github.com/shirou/gopsutil/v3/process"
)

// ProcessInfo identifies one OS process.
type ProcessInfo struct {
	PID  int32
	Name string
}

// Table lists and kills OS processes. SystemTable is the real one; tests
// substitute fakes.
type Table interface {
	Processes(ctx context.Context) ([]ProcessInfo, error)
	Kill(ctx context.Context, pid int32) error
}

// SystemTable reads the host process table through gopsutil.
type SystemTable struct{}

// Processes returns every process whose name could be read. Processes
// that exit while being listed are skipped.
func (SystemTable) Processes(ctx context.Context) ([]ProcessInfo, error) {
	procs, err := psutil.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	infos := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		infos = append(infos, ProcessInfo{PID: p.Pid, Name: name})
	}
	return infos, nil
}

// Kill sends SIGKILL (TerminateProcess on Windows) to pid.
func (SystemTable) Kill(ctx context.Context, pid int32) error {
	p, err := psutil.NewProcessWithContext(ctx, pid)
	if err != nil {
		return fmt.Errorf("find pid %d: %w", pid, err)
	}
	if err := p.KillWithContext(ctx); err != nil {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	return nil
}

// MatchName reports whether name contains any of patterns,
// case-insensitively.
func MatchName(name string, patterns []string) bool {
	lower := strings.ToLower(name)
	for _, p := range patterns {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
