//go:build !windows

package process

import (
	"errors"
	"os/exec"
	"syscall"
)

// setProcessGroup puts the child in its own process group so the whole
// tree can be signalled at once.
func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func terminateGroup(cmd *exec.Cmd) error {
	return signalGroup(cmd, syscall.SIGTERM)
}

func killGroup(cmd *exec.Cmd) error {
	return signalGroup(cmd, syscall.SIGKILL)
}

// signalGroup sends sig to the process group, falling back to the process
// itself when the group cannot be found.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	var err error
	if pgid, perr := syscall.Getpgid(cmd.Process.Pid); perr == nil {
		err = syscall.Kill(-pgid, sig)
	} else {
		err = cmd.Process.Signal(sig)
	}

	// Already gone
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

// shellCommand runs line through the system shell.
func shellCommand(line string) *exec.Cmd {
	return exec.Command("sh", "-c", line)
}
