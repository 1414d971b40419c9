//go:build unix

package sandbox

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureProcess puts the child in its own process group so the whole
// group can be signalled on timeout.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup signals the process group led by proc, falling back to the
// process alone when the group is gone.
func signalGroup(proc *os.Process, sig syscall.Signal) error {
	err := unix.Kill(-proc.Pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return proc.Signal(sig)
	}
	return err
}

func accessExecutable(path string) bool {
	return unix.Access(path, unix.X_OK) == nil
}

// OSRelease returns the kernel release reported by uname.
func OSRelease() string {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return ""
	}
	return unix.ByteSliceToString(u.Release[:])
}
