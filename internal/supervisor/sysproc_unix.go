//go:build !windows

package supervisor

import (
	"fmt"
	"os/exec"
	"syscall"
)

var signals = map[string]syscall.Signal{
	"SIGTERM": syscall.SIGTERM,
	"SIGINT":  syscall.SIGINT,
	"SIGHUP":  syscall.SIGHUP,
	"SIGQUIT": syscall.SIGQUIT,
	"SIGUSR1": syscall.SIGUSR1,
	"SIGUSR2": syscall.SIGUSR2,
}

// detach starts the child in its own process group so the whole group can
// be killed without touching the orchestrator.
func detach(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// killGroup sends SIGKILL to the child's process group.
func killGroup(pid int) error {
	if pid <= 0 {
		return nil
	}
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		return err
	}
	if pgid != pid {
		// not a group leader; never signal the orchestrator's own group
		return nil
	}
	return syscall.Kill(-pgid, syscall.SIGKILL)
}

func signalFor(name string) (syscall.Signal, error) {
	sig, ok := signals[name]
	if !ok {
		return 0, fmt.Errorf("unsupported quit signal %q", name)
	}
	return sig, nil
}
