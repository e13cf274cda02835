// Package events implements the per-mission publish/subscribe hub that makes
// mission progress observable in real time. Each mission gets an append-only
// bounded history for late joiners and any number of live subscribers, each
// with its own bounded queue so a slow consumer never blocks publication.
package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Type tags a stream event.
type Type string

const (
	TypeStatus    Type = "status"
	TypeProgress  Type = "progress"
	TypeFinding   Type = "finding"
	TypeAction    Type = "action"
	TypeError     Type = "error"
	TypeComplete  Type = "complete"
	TypeHeartbeat Type = "heartbeat"
)

// Event is an ephemeral progress message. It is only retained in the bounded
// per-mission history, never persisted.
type Event struct {
	Type      Type           `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

const (
	// DefaultHistoryLimit bounds the replay history kept per mission.
	DefaultHistoryLimit = 100

	// DefaultHeartbeat is the idle window after which a subscriber receives
	// a synthesized heartbeat instead of blocking indefinitely.
	DefaultHeartbeat = 30 * time.Second

	// subscriberBuffer is the per-subscriber queue depth. Publishes beyond
	// this are dropped for that subscriber only.
	subscriberBuffer = 64
)

// Bus fans out mission events to subscribers.
type Bus struct {
	mu           sync.RWMutex
	subscribers  map[string][]chan Event
	history      map[string][]Event
	historyLimit int
	heartbeat    time.Duration
	log          *zap.Logger
}

// NewBus creates a bus. Zero historyLimit and heartbeat select the defaults.
func NewBus(historyLimit int, heartbeat time.Duration, log *zap.Logger) *Bus {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		subscribers:  make(map[string][]chan Event),
		history:      make(map[string][]Event),
		historyLimit: historyLimit,
		heartbeat:    heartbeat,
		log:          log,
	}
}

// Publish appends the event to the mission's history and forwards it to every
// registered subscriber. A full subscriber queue drops the event for that
// subscriber rather than blocking the publisher.
func (b *Bus) Publish(missionID string, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	hist := append(b.history[missionID], ev)
	if len(hist) > b.historyLimit {
		hist = hist[len(hist)-b.historyLimit:]
	}
	b.history[missionID] = hist
	subs := append([]chan Event(nil), b.subscribers[missionID]...)
	b.mu.Unlock()

	for _, q := range subs {
		select {
		case q <- ev:
		default:
			b.log.Debug("dropping event for slow subscriber",
				zap.String("mission_id", missionID),
				zap.String("type", string(ev.Type)))
		}
	}
}

// Subscribe registers a new subscriber for the mission and returns its event
// channel. The channel yields a heartbeat event when no event arrives within
// the idle window, and is closed when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, missionID string) <-chan Event {
	queue := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.subscribers[missionID] = append(b.subscribers[missionID], queue)
	b.mu.Unlock()

	out := make(chan Event)
	go func() {
		defer close(out)
		defer b.unsubscribe(missionID, queue)

		idle := time.NewTimer(b.heartbeat)
		defer idle.Stop()

		for {
			fired := false
			select {
			case <-ctx.Done():
				return
			case ev := <-queue:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case <-idle.C:
				fired = true
				hb := Event{
					Type:      TypeHeartbeat,
					Data:      map[string]any{"timestamp": time.Now().UTC().Format(time.RFC3339)},
					Timestamp: time.Now().UTC(),
				}
				select {
				case out <- hb:
				case <-ctx.Done():
					return
				}
			}
			if !fired {
				if !idle.Stop() {
					select {
					case <-idle.C:
					default:
					}
				}
			}
			idle.Reset(b.heartbeat)
		}
	}()
	return out
}

// History returns up to limit of the most recent events for the mission
// without affecting live subscriptions.
func (b *Bus) History(missionID string, limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	hist := b.history[missionID]
	if limit > 0 && len(hist) > limit {
		hist = hist[len(hist)-limit:]
	}
	out := make([]Event, len(hist))
	copy(out, hist)
	return out
}

// ClearHistory drops the retained history for a mission.
func (b *Bus) ClearHistory(missionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.history, missionID)
}

func (b *Bus) unsubscribe(missionID string, queue chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[missionID]
	for i, q := range subs {
		if q == queue {
			b.subscribers[missionID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscribers[missionID]) == 0 {
		delete(b.subscribers, missionID)
	}
}
