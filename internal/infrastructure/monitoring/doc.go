/*
Package monitoring provides Prometheus metrics for the orchestrator.

# Overview

Each Metrics value owns a private registry, so tests and embedded instances
never collide on registration. Record methods are safe on a nil receiver.

# Metrics

- State transitions and the current state gauge
- Launch attempts and spawn-to-ready latency
- Crashes, rejected intents, auxiliary restarts
- Probe attempts, bus traffic, catalog size
- HTTP requests and WebSocket connections

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "notepad")
	// ... spawn and probe ...
	timer.Stop("ready")
*/
package monitoring
