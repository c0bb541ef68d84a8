// Package config loads orchestrator configuration.
//
// Values are layered: Default(), then an optional YAML file (the -config
// flag or $ORCH_CONFIG), then environment variables prefixed with ORCH_.
// Every key named in the public configuration surface (launch, quit and
// confirm timeouts, probe interval and failure threshold, the launch
// whitelist) can be set at any layer.
package config
