// agent-sim drives simulated agents through the real coordination client
// against a live coordinator. It is a test harness for watching the auction
// and the round-robin fallback behave under real concurrency.
//
// Usage:
//
//	agent-sim -url http://localhost:3001 -agents alex:Alex,jamie:Jamie -rounds 5 -bids
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"personaplex/coordinator/internal/auction"
	"personaplex/coordinator/internal/client"
	"personaplex/coordinator/internal/config"
)

var (
	coordURL   = flag.String("url", "http://localhost:3001", "coordinator base URL")
	agents     = flag.String("agents", "", "roster as id:Name pairs; empty generates -n anonymous agents")
	n          = flag.Int("n", 3, "number of generated agents when -agents is empty")
	rounds     = flag.Int("rounds", 5, "number of utterances to contend for")
	useBids    = flag.Bool("bids", false, "attach random importance bids")
	transcript = flag.String("transcript", "", "fixed transcript; empty cycles through canned utterances")
)

var cannedUtterances = []string{
	"so what do you all make of this?",
	"can someone explain that last point?",
	"that seems wrong to me, no?",
	"ok, moving on, thoughts on the next step?",
	"interesting. anything to add?",
}

func main() {
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMilli}).
		With().Timestamp().Logger()

	roster := config.ParseAgents(*agents)
	if len(roster) == 0 {
		for i := 0; i < *n; i++ {
			id := "agent-" + uuid.New().String()[:8]
			roster = append(roster, config.Agent{ID: id, DisplayName: id})
		}
	}
	if len(roster) == 0 {
		logger.Fatal().Msg("no agents configured")
	}

	clients := make(map[string]*client.Client, len(roster))
	for _, ag := range roster {
		clients[ag.ID] = client.New(client.Config{
			BaseURL:     *coordURL,
			AgentID:     ag.ID,
			DisplayName: ag.DisplayName,
			Logger:      logger,
		})
	}

	ctx := context.Background()

	// Seed local memory the way a restarting agent would.
	if turns := clients[roster[0].ID].SyncRecentTurns(ctx); len(turns) > 0 {
		logger.Info().Int("turns", len(turns)).Msg("synced shared conversation")
	}

	wins := make(map[string]int, len(roster))
	for round := 0; round < *rounds; round++ {
		utterance := *transcript
		if utterance == "" {
			utterance = cannedUtterances[round%len(cannedUtterances)]
		}
		logger.Info().Int("round", round+1).Str("utterance", utterance).Msg("user speaks")

		var mu sync.Mutex
		var winner string
		var wg sync.WaitGroup
		for _, ag := range roster {
			wg.Add(1)
			go func(ag config.Agent) {
				defer wg.Done()
				c := clients[ag.ID]
				var allowed bool
				if *useBids {
					bid := &auction.Bid{
						Score:      float64(rand.Intn(auction.MaxScore + 1)),
						Intent:     auction.BidIntents[rand.Intn(len(auction.BidIntents))],
						Confidence: rand.Float64(),
					}
					allowed = c.RequestTurnWithBid(ctx, utterance, bid)
				} else {
					allowed = c.RequestTurn(ctx, utterance)
				}
				if allowed {
					mu.Lock()
					winner = ag.ID
					mu.Unlock()
				}
			}(ag)
		}
		wg.Wait()

		if winner == "" {
			logger.Warn().Msg("nobody won the floor this round")
			continue
		}
		wins[winner]++
		reply := fmt.Sprintf("(%s speaking about: %s)", winner, utterance)
		logger.Info().Str("winner", winner).Msg("floor granted")

		// Simulate the reply, then release the floor.
		time.Sleep(100 * time.Millisecond)
		clients[winner].EndTurn(ctx, utterance, reply)
	}

	var summary []string
	for _, ag := range roster {
		summary = append(summary, fmt.Sprintf("%s=%d", ag.ID, wins[ag.ID]))
	}
	logger.Info().Str("wins", strings.Join(summary, " ")).Msg("simulation done")
}
