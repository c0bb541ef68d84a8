package types

import (
	"encoding/json"
	"strings"
	"time"
)

// IntentType enumerates the commands the orchestrator understands.
type IntentType string

const (
	IntentLaunchGame IntentType = "LAUNCH_GAME"
	IntentBackHome   IntentType = "BACK_HOME"
	IntentQuit       IntentType = "QUIT"
	IntentConfirmYes IntentType = "CONFIRM_YES"
	IntentConfirmNo  IntentType = "CONFIRM_NO"
)

// Valid reports whether t is one of the known intent types.
func (t IntentType) Valid() bool {
	switch t {
	case IntentLaunchGame, IntentBackHome, IntentQuit, IntentConfirmYes, IntentConfirmNo:
		return true
	}
	return false
}

// DefaultConfidence is assumed when a producer omits the confidence score.
// UI buttons and the test harness never send one.
const DefaultConfidence = 1.0

// Intent is a structured command derived from voice or UI input.
type Intent struct {
	ID         string     `json:"id,omitempty"`
	Type       IntentType `json:"type"`
	Text       string     `json:"text,omitempty"`
	Candidate  string     `json:"game_name,omitempty"`
	Confidence float64    `json:"confidence"`
	Source     string     `json:"source,omitempty"`
	ReceivedAt time.Time  `json:"received_at"`
}

// Name returns the text that should be resolved against the catalog.
func (i Intent) Name() string {
	if c := strings.TrimSpace(i.Candidate); c != "" {
		return c
	}
	return strings.TrimSpace(i.Text)
}

// UnmarshalJSON accepts both the current payload and the legacy one that
// used "game" for the candidate and lower-case type names.
func (i *Intent) UnmarshalJSON(data []byte) error {
	type alias Intent
	var raw struct {
		alias
		Game       string   `json:"game"`
		Confidence *float64 `json:"confidence"`
		Confirm    *bool    `json:"confirm"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*i = Intent(raw.alias)
	i.Type = IntentType(strings.ToUpper(strings.TrimSpace(string(i.Type))))
	if i.Candidate == "" {
		i.Candidate = raw.Game
	}
	if raw.Confidence != nil {
		i.Confidence = *raw.Confidence
	} else {
		i.Confidence = DefaultConfidence
	}
	// overlay/confirm may carry {"confirm": true} instead of a type
	if i.Type == "" && raw.Confirm != nil {
		if *raw.Confirm {
			i.Type = IntentConfirmYes
		} else {
			i.Type = IntentConfirmNo
		}
	}
	return nil
}
