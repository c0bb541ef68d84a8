// Package main is the entry point for the game session orchestrator.
//
// The orchestrator turns voice and UI intents into exactly one running game
// at a time. It resolves spoken names against the game catalog, launches and
// health-checks the game, quits or kills it on request, and recovers from
// crashes, publishing every state change to the overlay and the bus.
//
// Architecture:
//
//	MQTT / HTTP → Gateway → Orchestrator (actor) → Supervisor → game process
//	                              ↑                     ↑
//	                          Watchdog ─────────────────┘
//
// Configuration:
//   - Defaults, then the YAML file from -config or $ORCH_CONFIG
//   - Environment variables (ORCH_ prefix, 12-factor)
//   - -manifest overrides the catalog location
//
// Usage:
//
//	# Production mode
//	./orchestrator -config /etc/arcade/orchestrator.yaml
//
//	# Development mode (colored logs, debug level)
//	./orchestrator -dev -manifest ./games
//
//	# Verify broker wiring
//	./orchestrator -smoke
//
// Signals:
//   - SIGINT, SIGTERM: end the session gracefully, then exit
//   - SIGHUP: reload the game catalog
package main
