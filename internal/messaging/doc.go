// Package messaging connects the orchestrator to the publish/subscribe bus.
//
// A Bus moves raw payloads between topics. Two transports exist: an MQTT
// client for the robot's broker and an in-process bus used for tests and
// single-host setups. The Gateway sits on top of either one and speaks the
// orchestrator's wire format: it decodes inbound intents, rate limits them,
// and publishes state events and overlay directives.
package messaging
