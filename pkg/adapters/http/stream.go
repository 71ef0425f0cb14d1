package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/internal/logging"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
)

// allTopics receives every change regardless of unit of work.
const allTopics = "*"

// ChangeEvent is one server-sent message.
type ChangeEvent struct {
	UOWID string           `json:"uow_id"`
	Event domain.EventType `json:"event,omitempty"`
	Seq   int64            `json:"seq,omitempty"`
	Diff  *domain.UOWDiff  `json:"diff"`
}

// StreamManager fans committed changes out to SSE subscribers.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- ChangeEvent]struct{} // UOW id or allTopics -> set of channels
	logger      *slog.Logger
}

// NewStreamManager creates a stream manager.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan<- ChangeEvent]struct{}),
		logger:      logger,
	}
}

// Hooks returns commit hooks that publish each change as a diff.
func (sm *StreamManager) Hooks() domain.Hooks {
	return domain.Hooks{
		OnCommit: func(_ context.Context, e *domain.CommitEvent) {
			diff := domain.Diff(e.Previous, e.UOW)
			if diff == nil {
				return
			}
			ev := ChangeEvent{UOWID: e.UOW.ID, Diff: diff}
			if e.Entry != nil {
				ev.Event = e.Entry.EventType
				ev.Seq = e.Entry.Seq
			}
			sm.Broadcast(ev)
		},
	}
}

// Subscribe registers a subscriber for topic (a UOW id, or "" for all).
// The returned func unsubscribes and closes the channel.
func (sm *StreamManager) Subscribe(topic string) (<-chan ChangeEvent, func()) {
	if topic == "" {
		topic = allTopics
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan ChangeEvent, 16)
	if _, ok := sm.subscribers[topic]; !ok {
		sm.subscribers[topic] = make(map[chan<- ChangeEvent]struct{})
	}
	sm.subscribers[topic][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[topic]; ok {
			if _, ok := subs[ch]; !ok {
				return
			}
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, topic)
			}
		}
	}
}

// Broadcast delivers ev to the subscribers of its UOW and to global subscribers.
// Slow subscribers lose messages rather than blocking commits.
func (sm *StreamManager) Broadcast(ev ChangeEvent) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for _, topic := range []string{ev.UOWID, allTopics} {
		for ch := range sm.subscribers[topic] {
			select {
			case ch <- ev:
			default:
				sm.logger.Warn("SSE: Client buffer full, dropping message", "uow_id", ev.UOWID)
			}
		}
	}
}

func (ev ChangeEvent) matches(watch []string) bool {
	if len(watch) == 0 {
		return true
	}
	for _, field := range watch {
		switch field {
		case "status":
			if ev.Diff.Status != nil {
				return true
			}
		case "location":
			if ev.Diff.Location != nil {
				return true
			}
		case "attributes":
			if len(ev.Diff.Attributes) > 0 {
				return true
			}
		}
	}
	return false
}

func (ev ChangeEvent) payload() ([]byte, error) {
	return json.Marshal(ev)
}
