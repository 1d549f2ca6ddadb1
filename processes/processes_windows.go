//go:build windows

package processes

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// configureDetached detaches the child from the launcher console so it is
// not torn down with the launcher.
func configureDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_CONSOLE | windows.DETACHED_PROCESS,
	}
}
