// Package types provides the wire-level data structures shared by the
// orchestrator, the messaging gateway and the HTTP control surface.
//
// Every type here is serialized as JSON on the pub/sub bus:
//   - Intent: inbound commands from voice, overlay, UI or test harnesses
//   - StateEvent: outbound append-only state snapshots
//   - OverlayDirective: outbound toasts and confirmation requests
package types
