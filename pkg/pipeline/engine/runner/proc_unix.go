//go:build !windows

package runner

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup places the child in a new process group so a timeout
// kill can target the whole group, including grandchildren.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup sends SIGKILL to the child's process group. If the group
// cannot be resolved it falls back to killing the direct child only.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		return cmd.Process.Kill()
	}
	return syscall.Kill(-pgid, syscall.SIGKILL)
}
