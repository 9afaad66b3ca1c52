//go:build windows

package launcher

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// detached starts the child without a console in its own process group.
func detached() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: windows.CREATE_NO_WINDOW | windows.CREATE_NEW_PROCESS_GROUP,
	}
}
