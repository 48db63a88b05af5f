package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultCollectionMs = 300
	maxCollectionMs     = 60_000
)

// Agent is one entry of the operator-configured roster.
type Agent struct {
	ID          string
	DisplayName string
}

type Config struct {
	Server struct {
		Port     string
		LogLevel string
	}
	Coordinator struct {
		// CollectionWindow is how long a bucket collects contenders before
		// the floor decision runs.
		CollectionWindow time.Duration
		// Agents is the explicit preference order; empty means discovery
		// order of first-seen agents.
		Agents []Agent
	}
}

func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("coordinator.collection_ms", defaultCollectionMs)

	// Map envs
	v.BindEnv("server.port", "COORDINATOR_PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")
	v.BindEnv("coordinator.collection_ms", "COORDINATOR_COLLECTION_MS")
	v.BindEnv("coordinator.agents", "COORDINATOR_AGENTS")

	var c Config
	c.Server.Port = toString(v.Get("server.port"))
	c.Server.LogLevel = v.GetString("server.log_level")
	c.Coordinator.CollectionWindow = collectionWindow(v.GetInt("coordinator.collection_ms"))
	c.Coordinator.Agents = ParseAgents(v.GetString("coordinator.agents"))

	return c
}

// collectionWindow clamps the configured window: negatives fall back to the
// default, and anything above 60s is capped there.
func collectionWindow(ms int) time.Duration {
	if ms < 0 {
		ms = defaultCollectionMs
	}
	if ms > maxCollectionMs {
		ms = maxCollectionMs
	}
	return time.Duration(ms) * time.Millisecond
}

// ParseAgents parses "alex:Alex,jamie:Jamie" into an ordered roster. A pair
// without a display name reuses the id; empty pairs are skipped.
func ParseAgents(s string) []Agent {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []Agent
	for _, pair := range strings.Split(s, ",") {
		id, name, _ := strings.Cut(pair, ":")
		id = strings.TrimSpace(id)
		name = strings.TrimSpace(name)
		if id == "" {
			continue
		}
		if name == "" {
			name = id
		}
		out = append(out, Agent{ID: id, DisplayName: name})
	}
	return out
}

func toString(v any) string { return fmt.Sprint(v) }
