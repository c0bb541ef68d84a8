package types

import "time"

// State is the orchestrator's single authoritative lifecycle value.
type State string

const (
	StateIdle            State = "IDLE"
	StateResolving       State = "RESOLVING"
	StateAwaitingConfirm State = "AWAITING_CONFIRM"
	StateLaunching       State = "LAUNCHING"
	StateRunning         State = "RUNNING"
	StateQuitting        State = "QUITTING"
	StateKilling         State = "KILLING"
	StateCrashed         State = "CRASHED"
)

// AcceptsLaunch reports whether a LAUNCH_GAME intent may be acted on in s.
func (s State) AcceptsLaunch() bool {
	return s == StateIdle || s == StateAwaitingConfirm
}

// HasSession reports whether s implies a live or dying child process.
func (s State) HasSession() bool {
	switch s {
	case StateLaunching, StateRunning, StateQuitting, StateKilling, StateCrashed:
		return true
	}
	return false
}

// Reasons attached to StateEvents.
const (
	ReasonLaunchTimeout        = "launch_timeout"
	ReasonProbeFailed          = "probe_failed"
	ReasonSpawnFailed          = "spawn_failed"
	ReasonExitedDuringLaunch   = "exited_during_launch"
	ReasonLaunchCancelled      = "launch_cancelled"
	ReasonQuitTimeout          = "quit_timeout"
	ReasonUnexpectedExit       = "unexpected_exit"
	ReasonCrashRecoveryTimeout = "crash_recovery_timeout"
	ReasonKillUnconfirmed      = "kill_unconfirmed"
	ReasonConfirmTimeout       = "confirm_timeout"
	ReasonConfirmDeclined      = "confirm_declined"
	ReasonConfirmCancelled     = "confirm_cancelled"
	ReasonLowConfidence        = "low_confidence"
	ReasonAmbiguous            = "ambiguous"
	ReasonFuzzyMatch           = "fuzzy_match"
	ReasonUserRequest          = "user_request"
	ReasonShutdown             = "shutdown"
)

// StateEvent is an append-only snapshot published on every transition.
// Published events are never revised.
type StateEvent struct {
	Seq       uint64    `json:"seq"`
	State     State     `json:"state"`
	Previous  State     `json:"previous,omitempty"`
	GameID    string    `json:"game_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"ts"`
}
