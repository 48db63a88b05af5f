// Package client is the agent-side half of the coordination protocol. Each
// agent process uses it to sync the shared conversation, request the floor,
// and report completion.
//
// The protocol is fail-closed: a timeout, a transport error, or an ambiguous
// response all mean "do not speak". A network failure can never be read as
// permission.
package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"personaplex/coordinator/internal/auction"
	"personaplex/coordinator/internal/types"
)

const (
	defaultPollInterval    = 50 * time.Millisecond
	defaultDecisionTimeout = 5 * time.Second
)

// NormalizeTranscript canonicalizes an utterance before hashing: trimmed,
// lowercased, runs of whitespace collapsed to single spaces.
func NormalizeTranscript(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// ComputeRequestID derives the deterministic bucket key for an utterance.
// Independent agents transcribing the same speech land on the same id without
// talking to each other.
func ComputeRequestID(transcript string) string {
	sum := sha256.Sum256([]byte(NormalizeTranscript(transcript)))
	return hex.EncodeToString(sum[:])
}

type Config struct {
	// BaseURL of the coordinator, e.g. "http://localhost:3001".
	BaseURL     string
	AgentID     string
	DisplayName string
	// PollInterval between turn-decision polls. Zero means 50ms.
	PollInterval time.Duration
	// DecisionTimeout is the local deadline to obtain a decision. Zero
	// means 5s. On expiry the request is treated as denied.
	DecisionTimeout time.Duration
	HTTPClient      *http.Client
	Logger          zerolog.Logger
}

type Client struct {
	baseURL         string
	agentID         string
	displayName     string
	pollInterval    time.Duration
	decisionTimeout time.Duration
	http            *http.Client
	log             zerolog.Logger
}

func New(cfg Config) *Client {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	timeout := cfg.DecisionTimeout
	if timeout <= 0 {
		timeout = defaultDecisionTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	displayName := cfg.DisplayName
	if displayName == "" {
		displayName = cfg.AgentID
	}
	return &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		agentID:         cfg.AgentID,
		displayName:     displayName,
		pollInterval:    poll,
		decisionTimeout: timeout,
		http:            hc,
		log:             cfg.Logger.With().Str("component", "coordclient").Str("agent_id", cfg.AgentID).Logger(),
	}
}

// SyncRecentTurns fetches the shared conversation log. Any failure yields an
// empty slice; agents simply continue with their local memory.
func (c *Client) SyncRecentTurns(ctx context.Context) []types.Turn {
	var out types.RecentTurnsResponse
	if err := c.getJSON(ctx, "/recent-turns", &out); err != nil {
		c.log.Warn().Err(err).Msg("recent-turns sync failed")
		return nil
	}
	return out.Turns
}

// RequestTurn asks the coordinator for permission to answer transcript.
// It returns only once a verdict exists or the local deadline expires.
func (c *Client) RequestTurn(ctx context.Context, transcript string) bool {
	return c.RequestTurnWithBid(ctx, transcript, nil)
}

// RequestTurnWithBid is RequestTurn carrying an importance bid for the
// coordinator's auction.
func (c *Client) RequestTurnWithBid(ctx context.Context, transcript string, bid *auction.Bid) bool {
	requestID := ComputeRequestID(transcript)
	body := types.TurnRequest{
		AgentID:     c.agentID,
		DisplayName: c.displayName,
		Transcript:  transcript,
		RequestID:   requestID,
	}
	if bid != nil {
		body.Bid = bid
	}

	var resp types.TurnRequestResponse
	if err := c.postJSON(ctx, "/request-turn", body, &resp); err != nil {
		// Fail closed: the request is never retried.
		c.log.Warn().Err(err).Str("request_id", requestID).Msg("request-turn failed")
		return false
	}
	if resp.Allowed != nil && *resp.Allowed {
		return true
	}
	if resp.Pending == nil || !*resp.Pending {
		return false
	}

	return c.pollDecision(ctx, requestID)
}

// pollDecision polls turn-decision until decided or the local deadline. Poll
// failures are tolerated; only the deadline ends the loop.
func (c *Client) pollDecision(ctx context.Context, requestID string) bool {
	deadline := time.Now().Add(c.decisionTimeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	path := "/turn-decision?requestId=" + url.QueryEscape(requestID) +
		"&agentId=" + url.QueryEscape(c.agentID)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
		var d types.TurnDecisionResponse
		if err := c.getJSON(ctx, path, &d); err != nil {
			continue
		}
		if d.Decided {
			return d.Allowed != nil && *d.Allowed
		}
	}
	c.log.Debug().Str("request_id", requestID).Msg("decision timeout, staying silent")
	return false
}

// EndTurn reports a completed reply, releasing the floor and appending the
// exchange to the shared log. Fire-and-forget: failures are logged, never
// surfaced to the caller.
func (c *Client) EndTurn(ctx context.Context, userMessage, assistantMessage string) {
	body := types.EndTurnRequest{
		AgentID:          c.agentID,
		UserMessage:      userMessage,
		AssistantMessage: assistantMessage,
	}
	if err := c.postJSON(ctx, "/end-turn", body, nil); err != nil {
		c.log.Warn().Err(err).Msg("end-turn failed")
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return &statusError{code: resp.StatusCode}
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type statusError struct{ code int }

func (e *statusError) Error() string {
	return "coordinator returned status " + http.StatusText(e.code)
}
