/*
Package server is the local HTTP control surface.

It exposes liveness and readiness, the current session state and its
history, the game catalog, intent injection for UIs and test rigs, manifest
reload, Prometheus metrics, and a websocket feed of state events at /stream.

POST /intent accepts the same JSON payload as the intent topic and is rate
limited per client IP. Write endpoints take application/json bodies only,
and browser origins must match server.allowed_origins (local origins by
default); the same list gates websocket upgrades.
*/
package server
