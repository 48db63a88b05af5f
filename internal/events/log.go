// Package events keeps a bounded in-memory log of arbiter activity and fans
// new entries out to live observers.
package events

import (
	"sync"
	"time"
)

type Event struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

const defaultMaxEvents = 200

type Log struct {
	mu   sync.RWMutex
	max  int
	evts []Event
	subs map[chan Event]struct{}
}

func NewLog() *Log {
	return &Log{max: defaultMaxEvents, subs: make(map[chan Event]struct{})}
}

// Append records an event and delivers it to subscribers. The log is capped;
// when it overflows, the oldest entries are dropped and a single truncation
// marker takes one slot so the total stays at the cap.
func (l *Log) Append(typ string, payload map[string]any) Event {
	evt := Event{Type: typ, Timestamp: time.Now().UTC(), Payload: payload}
	l.mu.Lock()
	l.evts = append(l.evts, evt)
	if n := len(l.evts); n > l.max {
		keep := l.max - 1
		dropped := n - keep
		l.evts = append([]Event(nil), l.evts[n-keep:]...)
		l.evts = append(l.evts, Event{
			Type:      "events_truncated",
			Timestamp: time.Now().UTC(),
			Payload:   map[string]any{"dropped": dropped, "kept": keep},
		})
	}
	for ch := range l.subs {
		select {
		case ch <- evt:
		default:
			// Slow observer; drop rather than block the arbiter.
		}
	}
	l.mu.Unlock()
	return evt
}

// List returns a copy of the retained events, oldest first.
func (l *Log) List() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, len(l.evts))
	copy(out, l.evts)
	return out
}

// Subscribers reports the number of live observer feeds.
func (l *Log) Subscribers() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs)
}

// Subscribe registers a live feed of subsequent events. The returned cancel
// func must be called to release the subscription; it closes the channel.
func (l *Log) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	l.mu.Lock()
	l.subs[ch] = struct{}{}
	l.mu.Unlock()
	cancel := func() {
		l.mu.Lock()
		if _, ok := l.subs[ch]; ok {
			delete(l.subs, ch)
			close(ch)
		}
		l.mu.Unlock()
	}
	return ch, cancel
}
