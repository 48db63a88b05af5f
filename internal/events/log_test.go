package events

import "testing"

func TestAppendAndList(t *testing.T) {
	l := NewLog()
	l.Append("floor_granted", map[string]any{"agent": "alex"})
	l.Append("floor_released", nil)

	evts := l.List()
	if len(evts) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evts))
	}
	if evts[0].Type != "floor_granted" || evts[1].Type != "floor_released" {
		t.Fatalf("unexpected event order: %+v", evts)
	}
}

func TestListReturnsCopy(t *testing.T) {
	l := NewLog()
	l.Append("a", nil)
	got := l.List()
	got[0].Type = "mutated"
	if l.List()[0].Type != "a" {
		t.Fatalf("List must return a copy")
	}
}

func TestTruncationKeepsCapAndMarker(t *testing.T) {
	l := NewLog()
	for i := 0; i < defaultMaxEvents+10; i++ {
		l.Append("tick", nil)
	}
	evts := l.List()
	if len(evts) != defaultMaxEvents {
		t.Fatalf("expected %d events after truncation, got %d", defaultMaxEvents, len(evts))
	}
	if evts[len(evts)-1].Type != "events_truncated" {
		t.Fatalf("expected truncation marker last, got %q", evts[len(evts)-1].Type)
	}
}

func TestSubscribeReceivesNewEvents(t *testing.T) {
	l := NewLog()
	ch, cancel := l.Subscribe()
	defer cancel()

	l.Append("bucket_flushed", map[string]any{"winner": "jamie"})
	evt := <-ch
	if evt.Type != "bucket_flushed" {
		t.Fatalf("expected bucket_flushed, got %q", evt.Type)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	l := NewLog()
	_, cancel := l.Subscribe()
	cancel()
	cancel()
	// Appending after cancel must not panic on the closed channel.
	l.Append("tick", nil)
}

func TestSubscribersTracksLiveFeeds(t *testing.T) {
	l := NewLog()
	if l.Subscribers() != 0 {
		t.Fatalf("fresh log must have no subscribers")
	}
	_, cancelA := l.Subscribe()
	_, cancelB := l.Subscribe()
	if l.Subscribers() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", l.Subscribers())
	}
	cancelA()
	cancelB()
	if l.Subscribers() != 0 {
		t.Fatalf("cancel must release the subscription, got %d", l.Subscribers())
	}
}
