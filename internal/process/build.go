package process

import (
	"fmt"
	"os/exec"

	"github.com/mattn/go-shellwords"

	"github.com/randomizedcoder/go-livestream-viewer/internal/player"
)

// Build creates an unstarted exec.Cmd for c running in workDir.
//
// ExplicitPath commands are located inside playerDir and run directly with
// their argument string split into words. ShellLookup commands are handed
// to the system shell as one line.
func Build(c player.Command, playerDir, workDir string) (*exec.Cmd, error) {
	var cmd *exec.Cmd

	switch c.Mode {
	case player.ExplicitPath:
		path, err := Locate(playerDir, c.Program)
		if err != nil {
			return nil, err
		}
		args, err := shellwords.Parse(c.Args)
		if err != nil {
			return nil, fmt.Errorf("parse %s arguments: %w", c.Program, err)
		}
		cmd = exec.Command(path, args...)

	case player.ShellLookup:
		cmd = shellCommand(c.String())

	default:
		return nil, fmt.Errorf("unknown invocation mode %d", c.Mode)
	}

	cmd.Dir = workDir
	return cmd, nil
}
