package intent

import (
	"strings"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/arcade/internal/domain/manifest"
	"github.com/GriffinCanCode/arcade/internal/shared/types"
)

// Reasons for IGNORE decisions.
const (
	ReasonUnknownGame = "unknown_game"
	ReasonDuplicate   = "duplicate"
	ReasonEmptyName   = "empty_name"
	ReasonUnsupported = "unsupported"
)

// Action is the routing verdict for one intent.
type Action int

const (
	ActionIgnore Action = iota
	ActionLaunch
	ActionNeedsConfirm
	ActionBackHome
	ActionQuit
	ActionConfirmYes
	ActionConfirmNo
)

// String returns the string representation of the action
func (a Action) String() string {
	switch a {
	case ActionLaunch:
		return "LAUNCH"
	case ActionNeedsConfirm:
		return "LAUNCH_NEEDS_CONFIRM"
	case ActionBackHome:
		return "BACK_HOME"
	case ActionQuit:
		return "QUIT"
	case ActionConfirmYes:
		return "CONFIRM_YES"
	case ActionConfirmNo:
		return "CONFIRM_NO"
	default:
		return "IGNORE"
	}
}

// Decision is what the orchestrator acts on. It never carries state.
type Decision struct {
	Action     Action
	Intent     types.Intent
	Entry      *manifest.Entry
	Candidates []manifest.Candidate
	Reason     string
	Score      float64
}

// Resolver maps spoken text to catalog entries.
type Resolver interface {
	Resolve(text string) (manifest.Resolution, error)
}

// DefaultConfidenceThreshold applies when Options leaves the threshold unset.
const DefaultConfidenceThreshold = 0.6

// Options configures a Router.
type Options struct {
	// ConfidenceThreshold is the minimum confidence for a direct launch.
	// nil selects DefaultConfidenceThreshold; zero disables the check.
	ConfidenceThreshold *float64
	Cooldown            time.Duration
	Now                 func() time.Time
}

// Router classifies intents. It is safe for concurrent use and never
// touches orchestrator state.
type Router struct {
	resolver  Resolver
	threshold float64
	cooldown  time.Duration
	now       func() time.Time
	logger    *zap.Logger

	seen      cmap.ConcurrentMap[string, time.Time]
	pruneMu   sync.Mutex
	lastPrune time.Time
}

// NewRouter creates a router over resolver.
func NewRouter(resolver Resolver, opts Options, logger *zap.Logger) *Router {
	threshold := DefaultConfidenceThreshold
	if opts.ConfidenceThreshold != nil {
		threshold = *opts.ConfidenceThreshold
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		resolver:  resolver,
		threshold: threshold,
		cooldown:  opts.Cooldown,
		now:       opts.Now,
		logger:    logger,
		seen:      cmap.New[time.Time](),
	}
}

// Classify turns an intent into a decision.
func (r *Router) Classify(in types.Intent) Decision {
	d := Decision{Action: ActionIgnore, Intent: in}

	if r.duplicate(in) {
		d.Reason = ReasonDuplicate
		r.logger.Debug("intent coalesced", zap.String("type", string(in.Type)), zap.String("name", in.Name()))
		return d
	}

	switch in.Type {
	case types.IntentBackHome:
		d.Action = ActionBackHome
	case types.IntentQuit:
		d.Action = ActionQuit
	case types.IntentConfirmYes:
		d.Action = ActionConfirmYes
	case types.IntentConfirmNo:
		d.Action = ActionConfirmNo
	case types.IntentLaunchGame:
		r.classifyLaunch(&d)
	default:
		d.Reason = ReasonUnsupported
	}
	return d
}

func (r *Router) classifyLaunch(d *Decision) {
	name := d.Intent.Name()
	if name == "" {
		d.Reason = ReasonEmptyName
		return
	}

	res, err := r.resolver.Resolve(name)
	if err != nil {
		d.Reason = ReasonUnknownGame
		return
	}
	d.Score = res.Score
	d.Candidates = res.Candidates

	switch {
	case res.Ambiguous():
		d.Action = ActionNeedsConfirm
		d.Reason = types.ReasonAmbiguous
	case !res.Certain():
		d.Action = ActionNeedsConfirm
		d.Entry = res.Entry
		d.Reason = types.ReasonFuzzyMatch
	case d.Intent.Confidence < r.threshold:
		d.Action = ActionNeedsConfirm
		d.Entry = res.Entry
		d.Reason = types.ReasonLowConfidence
	default:
		d.Action = ActionLaunch
		d.Entry = res.Entry
	}
	if d.Entry != nil && len(d.Candidates) == 0 {
		d.Candidates = []manifest.Candidate{{ID: d.Entry.ID, Name: d.Entry.Name, Score: res.Score}}
	}
}

// duplicate reports whether an identical intent was seen within the
// cooldown. The window runs from the first occurrence.
func (r *Router) duplicate(in types.Intent) bool {
	if r.cooldown <= 0 {
		return false
	}
	now := r.now()
	r.prune(now)

	dup := false
	r.seen.Upsert(fingerprint(in), now, func(exist bool, prev, next time.Time) time.Time {
		if exist && next.Sub(prev) < r.cooldown {
			dup = true
			return prev
		}
		return next
	})
	return dup
}

// prune drops expired fingerprints at most once per cooldown.
func (r *Router) prune(now time.Time) {
	r.pruneMu.Lock()
	if now.Sub(r.lastPrune) < r.cooldown {
		r.pruneMu.Unlock()
		return
	}
	r.lastPrune = now
	r.pruneMu.Unlock()

	for _, key := range r.seen.Keys() {
		r.seen.RemoveCb(key, func(_ string, seenAt time.Time, exists bool) bool {
			return exists && now.Sub(seenAt) >= r.cooldown
		})
	}
	r.logger.Debug("cooldown pruned", zap.Int("tracked", r.Pending()))
}

// Pending returns how many fingerprints are being tracked.
func (r *Router) Pending() int {
	return r.seen.Count()
}

func fingerprint(in types.Intent) string {
	return string(in.Type) + "\x00" + manifest.Fold(strings.TrimSpace(in.Name()))
}
