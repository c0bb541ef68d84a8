package manifest

import (
	"errors"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Resolution errors
var (
	ErrEmptyQuery = errors.New("empty game name")
	ErrNoMatch    = errors.New("no matching game")
)

// Fuzzy matching thresholds.
const (
	SubstringScore    = 0.8
	MinFuzzyScore     = 0.6
	minSubstringRunes = 2
	maxCandidates     = 3
	scoreEpsilon      = 1e-9
)

// MatchKind reports which resolution step produced a result.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchExact
	MatchSynonym
	MatchFuzzy
)

// String returns the string representation of the match kind
func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "exact"
	case MatchSynonym:
		return "synonym"
	case MatchFuzzy:
		return "fuzzy"
	default:
		return "none"
	}
}

// Candidate is one possible game for a fuzzy query.
type Candidate struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Key   string  `json:"key"`
	Score float64 `json:"score"`
}

// Resolution is the outcome of resolving spoken text against a catalog.
type Resolution struct {
	Query string
	Kind  MatchKind
	// Entry is set when exactly one game ranks best.
	Entry *Entry
	Score float64
	// Candidates lists the best fuzzy matches, highest first.
	Candidates []Candidate
}

// Ambiguous reports whether more than one game shares the best score.
func (r Resolution) Ambiguous() bool {
	if r.Kind != MatchFuzzy || len(r.Candidates) < 2 {
		return false
	}
	return math.Abs(r.Candidates[0].Score-r.Candidates[1].Score) < scoreEpsilon
}

// Certain reports whether the match needs no confirmation.
func (r Resolution) Certain() bool {
	return r.Entry != nil && (r.Kind == MatchExact || r.Kind == MatchSynonym)
}

// Resolve maps text to a game: exact id first, then folded
// synonym/name/id, then fuzzy candidates. It is a pure function of the
// catalog.
func (c *Catalog) Resolve(text string) (Resolution, error) {
	query := strings.TrimSpace(text)
	res := Resolution{Query: query}
	if query == "" {
		return res, ErrEmptyQuery
	}

	if e, ok := c.byID[query]; ok {
		res.Kind, res.Entry, res.Score = MatchExact, cloned(e), 1
		return res, nil
	}

	folded := Fold(query)
	if e, ok := c.keys[folded]; ok {
		res.Kind, res.Entry, res.Score = MatchSynonym, cloned(e), 1
		return res, nil
	}

	cands := c.fuzzy(folded)
	if len(cands) == 0 {
		return res, ErrNoMatch
	}

	res.Kind = MatchFuzzy
	res.Score = cands[0].Score
	res.Candidates = cands
	if !res.Ambiguous() {
		res.Entry = cloned(c.byID[cands[0].ID])
	}
	return res, nil
}

// fuzzy scores every key and keeps each game's best key.
func (c *Catalog) fuzzy(query string) []Candidate {
	best := map[string]Candidate{}
	for key, e := range c.keys {
		score := Similarity(query, key)
		if score < MinFuzzyScore {
			continue
		}
		if prev, ok := best[e.ID]; !ok || score > prev.Score {
			best[e.ID] = Candidate{ID: e.ID, Name: e.Name, Key: key, Score: score}
		}
	}

	out := make([]Candidate, 0, len(best))
	for _, cand := range best {
		out = append(out, cand)
	}
	sort.Slice(out, func(i, j int) bool {
		if math.Abs(out[i].Score-out[j].Score) >= scoreEpsilon {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > maxCandidates {
		out = out[:maxCandidates]
	}
	return out
}

// Similarity scores two folded strings in [0,1]. Containment of at least
// two runes scores SubstringScore; otherwise it is the normalised
// Levenshtein similarity. The higher of the two wins.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	dist := levenshtein.ComputeDistance(a, b)
	score := 1 - float64(dist)/float64(longest)

	if min(la, lb) >= minSubstringRunes && (strings.Contains(a, b) || strings.Contains(b, a)) {
		score = math.Max(score, SubstringScore)
	}
	return score
}

func cloned(e *Entry) *Entry {
	c := e.Clone()
	return &c
}
