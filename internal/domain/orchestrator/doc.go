// Package orchestrator owns the single game session and its state machine.
//
// All state lives in one actor goroutine. Intents, watchdog findings, timer
// expiries and worker results arrive as commands on one queue and are
// applied by the transition function while holding the state mutex. Every
// state entry bumps an epoch; timers and worker jobs carry the epoch they
// were started under, so a result that arrives after the state moved on is
// dropped instead of acted on.
//
// Blocking work (spawning, probing, quitting, killing) runs on a bounded
// worker pool and never on the actor goroutine.
package orchestrator
