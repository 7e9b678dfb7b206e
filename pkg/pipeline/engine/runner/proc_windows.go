//go:build windows

package runner

import "os/exec"

// Windows has no process groups in the POSIX sense. Steps run as plain child
// processes and a timeout kill only reaches the direct child.
func configureProcessGroup(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
