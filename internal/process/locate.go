package process

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrExecutableNotFound is returned when no file in the player directory
// matches the requested program.
var ErrExecutableNotFound = errors.New("executable not found")

// Locate finds program inside dir by case-insensitive substring match on
// file names. A file whose name without extension equals program wins over
// other matches; otherwise the first match in name order is returned.
// Directories are skipped.
func Locate(dir, program string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read player directory: %w", err)
	}

	want := strings.ToLower(program)
	var first string

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		if !strings.Contains(name, want) {
			continue
		}
		if strings.TrimSuffix(name, filepath.Ext(name)) == want || name == want {
			return filepath.Join(dir, e.Name()), nil
		}
		if first == "" {
			first = e.Name()
		}
	}

	if first == "" {
		return "", fmt.Errorf("%w: %s in %s", ErrExecutableNotFound, program, dir)
	}
	return filepath.Join(dir, first), nil
}
