/*
Package resilience paces recovery of auxiliary services.

# Overview

A Policy tracks one supervised service. Every health check reports Healthy
or Unhealthy; an unhealthy report answers with the action to take. Restarts
are spaced by an exponential backoff (cenkalti/backoff) and bounded by
MaxRestarts, after which the policy fails exactly once and stays failed.

# Usage

	policy := resilience.NewPolicy("asr", resilience.Settings{
		MaxRestarts:     3,
		InitialInterval: time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Info("aux service state", zap.String("service", name),
				zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})

	switch policy.Unhealthy() {
	case resilience.ActionRestart:
		restart()
	case resilience.ActionGiveUp:
		notifyFatal()
	}

# States

	Healthy --[failed check]-> Restarting --[passing check]-> Healthy
	                                |
	                      [budget exhausted]
	                                |
	                                v
	                             Failed

Retry wraps backoff.RetryNotify for one-shot operations such as the first
broker connection.
*/
package resilience
