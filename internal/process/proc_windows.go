//go:build windows

package process

import (
	"fmt"
	"os/exec"
	"syscall"
)

// setProcessGroup sets up a process group on Windows
func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags |= syscall.CREATE_NEW_PROCESS_GROUP
}

// terminateGroup asks the process tree to close.
func terminateGroup(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return exec.Command("taskkill", "/T", "/PID", fmt.Sprint(cmd.Process.Pid)).Run()
}

// killGroup force-kills the process tree.
func killGroup(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := exec.Command("taskkill", "/F", "/T", "/PID", fmt.Sprint(cmd.Process.Pid)).Run(); err != nil {
		return cmd.Process.Kill()
	}
	return nil
}

// shellCommand runs line through cmd.exe.
func shellCommand(line string) *exec.Cmd {
	return exec.Command("cmd", "/C", line)
}
