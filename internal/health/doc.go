// Package health confirms that a launching game is ready.
//
// Probes are built from heptiolabs/healthcheck check functions: an HTTP GET
// that must answer 200, or a TCP dial. "none" and "process" probes only
// require the child to survive one poll interval. Connection refused means
// the game has not started listening and never counts as a failure.
package health
