package types

// Turn is one completed user/assistant exchange. The coordinator keeps a
// bounded log of these; agents resync their local memory from it on startup
// or after missing updates.
type Turn struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// TurnRequest is the body of POST /request-turn.
// Bid is left untyped on purpose: it arrives from untrusted agent processes
// and is canonicalized by auction.Normalize before it touches arbiter state.
type TurnRequest struct {
	AgentID     string `json:"agentId"`
	DisplayName string `json:"displayName,omitempty"`
	Transcript  string `json:"transcript"`
	RequestID   string `json:"requestId"`
	Bid         any    `json:"bid,omitempty"`
}

// EndTurnRequest is the body of POST /end-turn.
type EndTurnRequest struct {
	AgentID          string `json:"agentId"`
	UserMessage      string `json:"userMessage"`
	AssistantMessage string `json:"assistantMessage"`
}

// TurnRequestResponse is the reply to POST /request-turn. Pointer fields keep
// the wire shapes distinct: {"pending":true}, {"pending":false,"allowed":false}
// and {"allowed":true}.
type TurnRequestResponse struct {
	Pending *bool `json:"pending,omitempty"`
	Allowed *bool `json:"allowed,omitempty"`
}

// TurnDecisionResponse is the reply to GET /turn-decision.
type TurnDecisionResponse struct {
	Decided               bool   `json:"decided"`
	Allowed               *bool  `json:"allowed,omitempty"`
	WinnerSelectionReason string `json:"winnerSelectionReason,omitempty"`
}

// RecentTurnsResponse is the reply to GET /recent-turns.
type RecentTurnsResponse struct {
	Turns    []Turn `json:"turns"`
	MaxTurns int    `json:"maxTurns"`
}
