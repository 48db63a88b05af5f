package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"personaplex/coordinator/internal/auction"
	"personaplex/coordinator/internal/coordinator"
	"personaplex/coordinator/internal/events"
)

func newCoordinator(t *testing.T) *httptest.Server {
	t.Helper()
	evts := events.NewLog()
	arb := coordinator.New(coordinator.Options{
		CollectionWindow: 20 * time.Millisecond,
		Logger:           zerolog.Nop(),
		Events:           evts,
	})
	h := coordinator.NewHandlers(arb, evts, zerolog.Nop())
	srv := httptest.NewServer(coordinator.NewRouter(h))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(srv *httptest.Server, agentID, displayName string) *Client {
	return New(Config{
		BaseURL:         srv.URL,
		AgentID:         agentID,
		DisplayName:     displayName,
		PollInterval:    5 * time.Millisecond,
		DecisionTimeout: 2 * time.Second,
		Logger:          zerolog.Nop(),
	})
}

func TestComputeRequestIDNormalization(t *testing.T) {
	base := ComputeRequestID("Hello   World")
	for _, variant := range []string{
		"hello world",
		"  HELLO WORLD  ",
		"Hello\tWorld",
		"hello\n  world",
	} {
		if got := ComputeRequestID(variant); got != base {
			t.Fatalf("requestId for %q differs: %s vs %s", variant, got, base)
		}
	}
	if ComputeRequestID("hello there") == base {
		t.Fatalf("different utterances must hash differently")
	}
}

func TestTwoAgentsOneWinner(t *testing.T) {
	srv := newCoordinator(t)
	alex := newClient(srv, "alex", "Alex")
	jamie := newClient(srv, "jamie", "Jamie")

	ctx := context.Background()
	transcript := "so what happens next?"

	var wg sync.WaitGroup
	results := make(map[string]bool, 2)
	var mu sync.Mutex
	for name, c := range map[string]*Client{"alex": alex, "jamie": jamie} {
		wg.Add(1)
		go func(name string, c *Client) {
			defer wg.Done()
			ok := c.RequestTurn(ctx, transcript)
			mu.Lock()
			results[name] = ok
			mu.Unlock()
		}(name, c)
	}
	wg.Wait()

	if results["alex"] == results["jamie"] {
		t.Fatalf("exactly one agent must be allowed, got %v", results)
	}
}

func TestAddressedAgentWins(t *testing.T) {
	srv := newCoordinator(t)
	alex := newClient(srv, "alex", "Alex")
	jamie := newClient(srv, "jamie", "Jamie")

	ctx := context.Background()
	transcript := "Jamie, what do you think?"

	var alexOK, jamieOK bool
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); alexOK = alex.RequestTurnWithBid(ctx, transcript, &auction.Bid{Score: 10}) }()
	go func() { defer wg.Done(); jamieOK = jamie.RequestTurnWithBid(ctx, transcript, &auction.Bid{Score: 1}) }()
	wg.Wait()

	if !jamieOK || alexOK {
		t.Fatalf("addressing must beat scores: alex=%v jamie=%v", alexOK, jamieOK)
	}
}

func TestEndTurnReleasesFloorAndSharesTurn(t *testing.T) {
	srv := newCoordinator(t)
	alex := newClient(srv, "alex", "Alex")
	jamie := newClient(srv, "jamie", "Jamie")
	ctx := context.Background()

	if !alex.RequestTurn(ctx, "first topic") {
		t.Fatalf("sole contender should win")
	}
	alex.EndTurn(ctx, "first topic", "alex's take")

	turns := jamie.SyncRecentTurns(ctx)
	if len(turns) != 1 || turns[0].Assistant != "alex's take" {
		t.Fatalf("expected the shared turn, got %+v", turns)
	}

	// Floor is free again for the next utterance.
	if !jamie.RequestTurn(ctx, "second topic") {
		t.Fatalf("floor should be free after end-turn")
	}
}

func TestTransportFailureIsDenial(t *testing.T) {
	srv := newCoordinator(t)
	srv.Close()

	c := newClient(srv, "alex", "Alex")
	ctx := context.Background()
	if c.RequestTurn(ctx, "anyone there?") {
		t.Fatalf("transport failure must never grant the floor")
	}
	if turns := c.SyncRecentTurns(ctx); len(turns) != 0 {
		t.Fatalf("sync against dead server must return empty, got %+v", turns)
	}
	// Must not panic or block.
	c.EndTurn(ctx, "u", "a")
}

func TestDecisionTimeoutFailsClosed(t *testing.T) {
	// A coordinator that accepts the request but never decides.
	mux := http.NewServeMux()
	mux.HandleFunc("/request-turn", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"pending":true}`))
	})
	mux.HandleFunc("/turn-decision", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"decided":false}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(Config{
		BaseURL:         srv.URL,
		AgentID:         "alex",
		PollInterval:    5 * time.Millisecond,
		DecisionTimeout: 50 * time.Millisecond,
		Logger:          zerolog.Nop(),
	})
	start := time.Now()
	if c.RequestTurn(context.Background(), "hello?") {
		t.Fatalf("timeout must be a denial")
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("client gave up before its deadline: %v", elapsed)
	}
}

func TestContextCancellationFailsClosed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/request-turn", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"pending":true}`))
	})
	mux.HandleFunc("/turn-decision", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"decided":false}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := New(Config{BaseURL: srv.URL, AgentID: "alex", PollInterval: 5 * time.Millisecond, Logger: zerolog.Nop()})
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if c.RequestTurn(ctx, "hello?") {
		t.Fatalf("cancelled context must be a denial")
	}
}

func TestImmediateDenialSkipsPolling(t *testing.T) {
	srv := newCoordinator(t)
	alex := newClient(srv, "alex", "Alex")
	jamie := newClient(srv, "jamie", "Jamie")
	ctx := context.Background()

	if !alex.RequestTurn(ctx, "first topic") {
		t.Fatalf("sole contender should win")
	}

	// Floor is held; jamie must get an instant denial without burning the
	// decision timeout.
	start := time.Now()
	if jamie.RequestTurn(ctx, "unrelated topic") {
		t.Fatalf("floor is held, jamie must be denied")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("immediate denial should not poll, took %v", elapsed)
	}
}
