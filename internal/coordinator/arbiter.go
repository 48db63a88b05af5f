// Package coordinator implements the turn arbiter: the single process-wide
// owner of the speaking floor for a room of independent agent processes.
package coordinator

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"personaplex/coordinator/internal/auction"
	"personaplex/coordinator/internal/config"
	"personaplex/coordinator/internal/events"
	"personaplex/coordinator/internal/types"
)

// MaxRecentTurns bounds the shared conversation log; oldest entries are
// evicted first.
const MaxRecentTurns = 50

const (
	defaultCollectionWindow = 300 * time.Millisecond
	maxCollectionWindow     = 60 * time.Second
)

type Options struct {
	// CollectionWindow is how long a new bucket collects contenders before
	// its one-shot flush. Zero means the default (300ms); values above 60s
	// are capped.
	CollectionWindow time.Duration
	// Roster is the explicit preference order. Empty enables discovery
	// order of first-seen agents.
	Roster []config.Agent
	Logger zerolog.Logger
	Events *events.Log
}

// bucket collects the agents contending for one utterance (requestId) until
// its timer flushes it. There is no cancellation: every bucket flushes once.
type bucket struct {
	transcript string
	entries    []auction.BidEntry
	createdAt  time.Time
}

// decision is immutable once recorded; polls only read it.
type decision struct {
	allowed map[string]bool
	reason  auction.Reason
}

// Arbiter owns all coordination state. Every read-modify-write goes through
// mu, so "floor free? then take it" is atomic with respect to concurrent
// requests and timer flushes.
type Arbiter struct {
	window time.Duration
	log    zerolog.Logger
	events *events.Log

	mu             sync.Mutex
	speaker        string // "" means the floor is free
	buckets        map[string]*bucket
	decisions      map[string]*decision
	recent         []types.Turn
	order          []string
	rosterFixed    bool
	lastRespondent int
}

func New(opts Options) *Arbiter {
	window := opts.CollectionWindow
	if window <= 0 {
		window = defaultCollectionWindow
	}
	if window > maxCollectionWindow {
		window = maxCollectionWindow
	}
	evts := opts.Events
	if evts == nil {
		evts = events.NewLog()
	}
	a := &Arbiter{
		window:         window,
		log:            opts.Logger.With().Str("component", "arbiter").Logger(),
		events:         evts,
		buckets:        make(map[string]*bucket),
		decisions:      make(map[string]*decision),
		lastRespondent: -1,
	}
	for _, ag := range opts.Roster {
		a.order = append(a.order, ag.ID)
	}
	a.rosterFixed = len(a.order) > 0
	return a
}

// TurnOutcome is the immediate verdict for a floor request. Pending means the
// caller must poll for the decision; Decided carries an instant verdict
// (floor held, or a replayed decision for an already-flushed bucket).
type TurnOutcome struct {
	Pending bool
	Decided bool
	Allowed bool
}

// RequestTurn registers agentID as a contender for the utterance identified
// by requestID. The first request for a requestID creates the bucket and arms
// its collection timer; later requests within the window join the same
// bucket. Duplicate agentIDs are ignored.
func (a *Arbiter) RequestTurn(agentID, displayName, transcript, requestID string, bid *auction.Bid) TurnOutcome {
	a.mu.Lock()
	defer a.mu.Unlock()

	metricTurnRequests.Inc()

	if !a.rosterFixed {
		a.observeAgent(agentID)
	}

	// A decision already exists for this requestID. Replay it only to the
	// holder retrying its own win; once the floor is released, the same
	// content hash means the utterance repeated and must be re-auctioned,
	// so the stale verdict is dropped.
	if d, ok := a.decisions[requestID]; ok {
		switch {
		case a.speaker == agentID:
			return TurnOutcome{Decided: true, Allowed: d.allowed[agentID]}
		case a.speaker == "":
			delete(a.decisions, requestID)
		}
		// Floor held by someone else: fall through to the denial below.
	}

	// Fail-fast backpressure: someone is speaking, no bucket is created.
	if a.speaker != "" {
		metricFloorHeldDenials.Inc()
		a.events.Append("request_denied", map[string]any{
			"agent_id": agentID, "request_id": requestID, "holder": a.speaker,
		})
		return TurnOutcome{Decided: true, Allowed: false}
	}

	b, ok := a.buckets[requestID]
	if !ok {
		b = &bucket{
			transcript: transcript,
			createdAt:  time.Now(),
		}
		a.buckets[requestID] = b
		time.AfterFunc(a.window, func() { a.flush(requestID) })
		metricBucketsCreated.Inc()
		a.events.Append("bucket_created", map[string]any{
			"request_id": requestID, "window_ms": a.window.Milliseconds(),
		})
	}
	for _, e := range b.entries {
		if e.AgentID == agentID {
			return TurnOutcome{Pending: true}
		}
	}
	b.entries = append(b.entries, auction.BidEntry{AgentID: agentID, DisplayName: displayName, Bid: bid})
	a.log.Debug().
		Str("agent_id", agentID).
		Str("request_id", requestID).
		Bool("bid", bid != nil).
		Int("entries", len(b.entries)).
		Msg("turn_requested")

	return TurnOutcome{Pending: true}
}

// flush decides one bucket. It fires exactly once per bucket, from the
// bucket's own timer.
func (a *Arbiter) flush(requestID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.buckets[requestID]
	if !ok {
		return
	}
	delete(a.buckets, requestID)
	metricBucketsFlushed.Inc()
	metricBucketCollectMs.Observe(float64(time.Since(b.createdAt).Milliseconds()))

	// Race with another bucket: the floor was taken between creation and
	// flush. Everyone here is denied and must retry a new utterance.
	if a.speaker != "" {
		allowed := make(map[string]bool, len(b.entries))
		for _, e := range b.entries {
			allowed[e.AgentID] = false
		}
		a.decisions[requestID] = &decision{allowed: allowed}
		metricFlushRaceDenials.Inc()
		a.events.Append("bucket_denied", map[string]any{
			"request_id": requestID, "holder": a.speaker, "entries": len(b.entries),
		})
		return
	}

	hasBids := false
	for _, e := range b.entries {
		if e.Bid != nil {
			hasBids = true
			break
		}
	}
	order := a.order
	if !hasBids {
		// Round-robin fallback: start the scan after the previous
		// round-robin winner so contenders rotate fairly.
		order = rotateAfter(a.order, a.lastRespondent)
	}

	res, err := auction.Select(b.entries, strings.ToLower(b.transcript), order)
	if err != nil {
		// Cannot happen: buckets are created with their first entry.
		a.log.Error().Err(err).Str("request_id", requestID).Msg("selection failed")
		a.decisions[requestID] = &decision{allowed: map[string]bool{}}
		return
	}
	if res.Reason == auction.ReasonRoundRobin {
		if idx := indexOf(a.order, res.WinnerID); idx >= 0 {
			a.lastRespondent = idx
		}
	}

	a.speaker = res.WinnerID
	metricFloorHeld.Set(1)
	metricDecisions.WithLabelValues(string(res.Reason)).Inc()

	allowed := make(map[string]bool, len(b.entries))
	for _, e := range b.entries {
		allowed[e.AgentID] = e.AgentID == res.WinnerID
	}
	a.decisions[requestID] = &decision{allowed: allowed, reason: res.Reason}

	a.log.Info().
		Str("request_id", requestID).
		Str("winner", res.WinnerID).
		Str("reason", string(res.Reason)).
		Int("entries", len(b.entries)).
		Msg("floor_granted")
	a.events.Append("floor_granted", map[string]any{
		"request_id": requestID, "winner": res.WinnerID,
		"reason": string(res.Reason), "entries": len(b.entries),
	})
}

// Decision reports the verdict for one agent of one request. decided stays
// false until the bucket flushes; agentIDs that never joined the bucket get
// allowed=false.
func (a *Arbiter) Decision(requestID, agentID string) (decided, allowed bool, reason auction.Reason) {
	a.mu.Lock()
	defer a.mu.Unlock()
	d, ok := a.decisions[requestID]
	if !ok {
		return false, false, ""
	}
	return true, d.allowed[agentID], d.reason
}

// EndTurn releases the floor and appends the exchange to the shared turn log.
// The release is unconditional: any agent may clear any holder. That is a
// known loose end of the protocol, kept for compatibility with the agents in
// the field.
func (a *Arbiter) EndTurn(agentID, userMessage, assistantMessage string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.speaker != "" && a.speaker != agentID {
		a.log.Warn().
			Str("holder", a.speaker).
			Str("agent_id", agentID).
			Msg("floor released by non-holder")
	}
	a.speaker = ""
	metricFloorHeld.Set(0)
	metricTurnsCompleted.Inc()

	a.recent = append(a.recent, types.Turn{User: userMessage, Assistant: assistantMessage})
	if n := len(a.recent); n > MaxRecentTurns {
		a.recent = append([]types.Turn(nil), a.recent[n-MaxRecentTurns:]...)
	}
	a.events.Append("floor_released", map[string]any{"agent_id": agentID})
}

// RecentTurns returns a copy of the shared conversation log, oldest first.
func (a *Arbiter) RecentTurns() []types.Turn {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]types.Turn, len(a.recent))
	copy(out, a.recent)
	return out
}

// CurrentSpeaker returns the floor holder's agentID, or "" when free.
func (a *Arbiter) CurrentSpeaker() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.speaker
}

// observeAgent appends first-seen agents to the discovered preference order.
func (a *Arbiter) observeAgent(agentID string) {
	if agentID == "" || indexOf(a.order, agentID) >= 0 {
		return
	}
	a.order = append(a.order, agentID)
}

// rotateAfter returns order rearranged to start just past idx, wrapping.
func rotateAfter(order []string, idx int) []string {
	if len(order) == 0 {
		return order
	}
	start := (idx + 1) % len(order)
	if start == 0 {
		return order
	}
	out := make([]string, 0, len(order))
	out = append(out, order[start:]...)
	out = append(out, order[:start]...)
	return out
}

func indexOf(order []string, id string) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}
