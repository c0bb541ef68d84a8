//go:build windows

package supervisor

import (
	"errors"
	"os/exec"
	"syscall"
)

const createNewProcessGroup = 0x00000200

func detach(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags |= createNewProcessGroup
}

// killGroup is covered by killTree on Windows.
func killGroup(int) error {
	return nil
}

func signalFor(name string) (syscall.Signal, error) {
	return 0, errors.New("signal quit is not supported on windows: " + name)
}
