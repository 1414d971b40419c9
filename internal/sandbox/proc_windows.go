//go:build windows

package sandbox

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// configureProcess is a no-op: tree termination on Windows goes through taskkill.
func configureProcess(_ *exec.Cmd) {}

// signalGroup has no group semantics on Windows; any signal kills the process.
func signalGroup(proc *os.Process, _ syscall.Signal) error {
	return proc.Kill()
}

// Windows has no executable bit; existence of a regular file suffices.
func accessExecutable(_ string) bool {
	return true
}

// OSRelease returns the Windows version as major.minor.build.
func OSRelease() string {
	v := windows.RtlGetVersion()
	return fmt.Sprintf("%d.%d.%d", v.MajorVersion, v.MinorVersion, v.BuildNumber)
}
