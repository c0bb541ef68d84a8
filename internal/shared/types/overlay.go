package types

import "time"

// OverlayKind selects how the overlay renders a directive.
type OverlayKind string

const (
	OverlayToast   OverlayKind = "toast"
	OverlayConfirm OverlayKind = "confirm"
	OverlayError   OverlayKind = "error"
)

// OverlayDirective is the only channel for user-visible feedback.
type OverlayDirective struct {
	Kind       OverlayKind `json:"kind"`
	Message    string      `json:"message"`
	GameID     string      `json:"game_id,omitempty"`
	Candidates []string    `json:"candidates,omitempty"`
	TimeoutMS  int64       `json:"timeout_ms,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	Fatal      bool        `json:"fatal,omitempty"`
	Timestamp  time.Time   `json:"ts"`
}

// Toast builds a transient notification.
func Toast(message, reason string) OverlayDirective {
	return OverlayDirective{Kind: OverlayToast, Message: message, Reason: reason, Timestamp: time.Now()}
}
