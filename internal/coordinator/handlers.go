package coordinator

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"personaplex/coordinator/internal/auction"
	"personaplex/coordinator/internal/events"
	"personaplex/coordinator/internal/types"
)

type Handlers struct {
	arb    *Arbiter
	events *events.Log
	log    zerolog.Logger
}

func NewHandlers(arb *Arbiter, evts *events.Log, logger zerolog.Logger) *Handlers {
	return &Handlers{arb: arb, events: evts, log: logger.With().Str("component", "http").Logger()}
}

// HandleRecentTurns serves the bounded shared conversation log. It never
// fails the caller; the worst case is an empty list.
func (h *Handlers) HandleRecentTurns(w http.ResponseWriter, r *http.Request) {
	turns := h.arb.RecentTurns()
	if turns == nil {
		turns = []types.Turn{}
	}
	writeJSON(w, http.StatusOK, types.RecentTurnsResponse{Turns: turns, MaxTurns: MaxRecentTurns})
}

// HandleRequestTurn is the floor-request entry point. Malformed input is
// rejected here and never reaches arbiter state.
func (h *Handlers) HandleRequestTurn(w http.ResponseWriter, r *http.Request) {
	var body types.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}
	if body.AgentID == "" || body.RequestID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing agentId or requestId"})
		return
	}
	displayName := body.DisplayName
	if displayName == "" {
		displayName = body.AgentID
	}
	var bid *auction.Bid
	if body.Bid != nil {
		b := auction.Normalize(body.Bid)
		bid = &b
	}

	out := h.arb.RequestTurn(body.AgentID, displayName, body.Transcript, body.RequestID, bid)
	switch {
	case out.Decided && out.Allowed:
		writeJSON(w, http.StatusOK, types.TurnRequestResponse{Allowed: boolPtr(true)})
	case out.Decided:
		writeJSON(w, http.StatusOK, types.TurnRequestResponse{Pending: boolPtr(false), Allowed: boolPtr(false)})
	default:
		writeJSON(w, http.StatusOK, types.TurnRequestResponse{Pending: boolPtr(true)})
	}
}

// HandleTurnDecision serves poll requests. Unknown requestIds simply report
// decided:false so clients keep polling until their local deadline.
func (h *Handlers) HandleTurnDecision(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	requestID := q.Get("requestId")
	agentID := q.Get("agentId")

	decided, allowed, reason := h.arb.Decision(requestID, agentID)
	if !decided {
		writeJSON(w, http.StatusOK, types.TurnDecisionResponse{Decided: false})
		return
	}
	writeJSON(w, http.StatusOK, types.TurnDecisionResponse{
		Decided:               true,
		Allowed:               boolPtr(allowed),
		WinnerSelectionReason: string(reason),
	})
}

// HandleEndTurn releases the floor and records the completed exchange.
func (h *Handlers) HandleEndTurn(w http.ResponseWriter, r *http.Request) {
	var body types.EndTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}
	if body.AgentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing agentId"})
		return
	}
	h.arb.EndTurn(body.AgentID, body.UserMessage, body.AssistantMessage)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// HandleListEvents exposes the retained arbiter event log for debugging.
func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	evts := h.events.List()
	if evts == nil {
		evts = []events.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evts})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func boolPtr(b bool) *bool { return &b }
