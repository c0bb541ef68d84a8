package orchestrator

import (
	"github.com/GriffinCanCode/arcade/internal/health"
	"github.com/GriffinCanCode/arcade/internal/shared/types"
	"github.com/GriffinCanCode/arcade/internal/supervisor"
)

type command interface{}

type timerKind int

const (
	timerLaunch timerKind = iota
	timerConfirm
	timerQuit
	timerCrash
)

func (k timerKind) String() string {
	switch k {
	case timerLaunch:
		return "launch"
	case timerConfirm:
		return "confirm"
	case timerQuit:
		return "quit"
	case timerCrash:
		return "crash_recovery"
	default:
		return "unknown"
	}
}

type cmdIntent struct {
	intent types.Intent
}

type cmdTimeout struct {
	epoch uint64
	kind  timerKind
}

type cmdLaunched struct {
	epoch  uint64
	handle supervisor.Handle
	err    error
}

type cmdProbed struct {
	epoch  uint64
	result health.Result
}

type cmdQuitDone struct {
	epoch uint64
	err   error
}

type cmdKillDone struct {
	epoch uint64
	err   error
}

type cmdCleanupDone struct {
	epoch uint64
	err   error
}

type cmdExit struct {
	handle supervisor.Handle
}

type cmdFatal struct {
	service string
	err     error
}

type cmdShutdown struct{}
