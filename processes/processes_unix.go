//go:build !windows

package processes

import (
	"os/exec"
	"syscall"
)

// configureDetached puts the child in its own session so it is not torn
// down with the launcher's process group.
func configureDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
