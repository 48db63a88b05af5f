// Package auction decides which agent gets the floor when several bid for the
// same user utterance. Rules, in priority order: explicit name addressing,
// highest importance score, preference-order tie-break.
package auction

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

const (
	MinScore     = 0
	MaxScore     = 10
	DefaultScore = 5

	defaultIntent     = "answer"
	defaultConfidence = 0.5
)

// BidIntents are the only intent values accepted from the wire.
var BidIntents = []string{"hype", "clarify", "counter", "summarize", "answer"}

// Bid is an agent's canonicalized importance bid for one utterance.
type Bid struct {
	Score      float64 `json:"score"`
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	// Target is the user-addressed agent name, if the agent extracted one.
	Target string `json:"target,omitempty"`
}

// BidEntry is one agent contending for the floor. Bid is nil when the agent
// requested the turn without bidding.
type BidEntry struct {
	AgentID     string
	DisplayName string
	Bid         *Bid
}

// Reason reports which rule produced the winner.
type Reason string

const (
	ReasonNameAddressing Reason = "name_addressing"
	ReasonRoundRobin     Reason = "round_robin"
	ReasonAuction        Reason = "auction"
)

// AwardResult is the selection outcome: exactly one winner and the rule that
// picked it.
type AwardResult struct {
	WinnerID string
	Reason   Reason
}

// ErrNoEntries indicates Select was called with an empty candidate list,
// which is a caller bug: the arbiter never flushes an empty bucket.
var ErrNoEntries = errors.New("auction: select called with no entries")

func defaultBid() Bid {
	return Bid{Score: DefaultScore, Intent: defaultIntent, Confidence: defaultConfidence}
}

// Normalize canonicalizes an untrusted wire bid. It is total: whatever the
// input, the result is a valid Bid with out-of-range numbers clamped and
// unknown fields defaulted.
func Normalize(raw any) Bid {
	b := defaultBid()
	obj, ok := raw.(map[string]any)
	if !ok {
		return b
	}
	if v, present := obj["score"]; present {
		b.Score = clamp(toNumber(v, DefaultScore), MinScore, MaxScore, DefaultScore)
	}
	if v, present := obj["confidence"]; present {
		b.Confidence = clamp(toNumber(v, defaultConfidence), 0, 1, defaultConfidence)
	}
	if s, isStr := obj["intent"].(string); isStr && validIntent(s) {
		b.Intent = s
	}
	if s, isStr := obj["target"].(string); isStr {
		if t := strings.TrimSpace(s); t != "" {
			b.Target = t
		}
	}
	return b
}

func validIntent(s string) bool {
	for _, v := range BidIntents {
		if s == v {
			return true
		}
	}
	return false
}

// toNumber coerces decoded JSON values to float64, falling back to def for
// anything that is not numeric.
func toNumber(v any, def float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return def
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return def
		}
		return f
	default:
		return def
	}
}

func clamp(n, lo, hi, def float64) float64 {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return def
	}
	return math.Max(lo, math.Min(hi, n))
}

// Select picks exactly one winner from entries. transcriptLower must be the
// lowercased user transcript; order is the preference order used for
// tie-breaks (falls back to entry order when empty).
//
// Addressing matches in entry order, not transcript position: when two
// display names both appear in the transcript, the first entry wins. Callers
// rely on that exact behavior.
func Select(entries []BidEntry, transcriptLower string, order []string) (AwardResult, error) {
	if len(entries) == 0 {
		return AwardResult{}, ErrNoEntries
	}

	if len(order) == 0 {
		order = make([]string, 0, len(entries))
		for _, e := range entries {
			order = append(order, e.AgentID)
		}
	}

	for _, e := range entries {
		name := strings.ToLower(e.DisplayName)
		if name != "" && strings.Contains(transcriptLower, name) {
			return AwardResult{WinnerID: e.AgentID, Reason: ReasonNameAddressing}, nil
		}
	}

	var candidates []BidEntry
	for _, e := range entries {
		if e.Bid != nil {
			candidates = append(candidates, e)
		}
	}
	usedBids := len(candidates) > 0
	if !usedBids {
		candidates = entries
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		switch {
		case scoreOf(c) > scoreOf(best):
			best = c
		case scoreOf(c) == scoreOf(best):
			bIdx := indexOf(order, best.AgentID)
			cIdx := indexOf(order, c.AgentID)
			if cIdx >= 0 && (bIdx < 0 || cIdx < bIdx) {
				best = c
			} else if bIdx < 0 && cIdx < 0 && c.AgentID < best.AgentID {
				best = c
			}
		}
	}

	reason := ReasonRoundRobin
	if usedBids {
		reason = ReasonAuction
	}
	return AwardResult{WinnerID: best.AgentID, Reason: reason}, nil
}

func scoreOf(e BidEntry) float64 {
	if e.Bid != nil {
		return e.Bid.Score
	}
	return DefaultScore
}

func indexOf(order []string, id string) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}
