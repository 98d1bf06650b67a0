package events

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/council-runtime/council/pkg/ledger"
	"github.com/council-runtime/council/pkg/observability"
)

// maxDispatchDepth bounds re-entrant publishes: a subscriber may publish in
// response to an event, but once the dispatch depth reaches this limit the
// hub drops the event instead of recursing further.
const maxDispatchDepth = 10

// DefaultHistoryLimit is the bounded history size when none is configured.
const DefaultHistoryLimit = 1000

// Callback receives a published event. Callbacks run synchronously on the
// publisher's goroutine, in subscription order.
type Callback func(Event)

// SubscriptionID identifies one subscription for later removal.
type SubscriptionID int

type subscriber struct {
	id SubscriptionID
	fn Callback
}

// Hub is the in-process event bus. One hub serves one task run; publishes
// are serialized, projection onto the attached ledger happens before
// subscriber dispatch, and subscriber panics never reach the publisher.
type Hub struct {
	mu           sync.Mutex
	subscribers  map[Type][]subscriber
	nextID       SubscriptionID
	history      []Event
	historyLimit int
	depth        int
	dual         *ledger.DualLedger
}

// NewHub creates a hub with the default history limit.
func NewHub() *Hub {
	return NewHubWithHistory(DefaultHistoryLimit)
}

// NewHubWithHistory creates a hub with a custom history limit.
// limit <= 0 selects DefaultHistoryLimit.
func NewHubWithHistory(limit int) *Hub {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Hub{
		subscribers:  make(map[Type][]subscriber),
		historyLimit: limit,
	}
}

// AttachLedger connects a dual ledger. Subsequent publishes are projected
// onto it before dispatch. Passing nil detaches.
func (h *Hub) AttachLedger(dual *ledger.DualLedger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dual = dual
}

// Subscribe registers a callback for events of type t and returns an ID
// for Unsubscribe. Callbacks fire in registration order.
func (h *Hub) Subscribe(t Type, fn Callback) SubscriptionID {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	h.subscribers[t] = append(h.subscribers[t], subscriber{id: h.nextID, fn: fn})
	return h.nextID
}

// Unsubscribe removes a subscription. Unknown IDs are a no-op.
func (h *Hub) Unsubscribe(t Type, id SubscriptionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subscribers[t]
	for i, s := range subs {
		if s.id == id {
			h.subscribers[t] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish records the event, projects it onto the attached ledger, then
// dispatches to subscribers of the event's type. At dispatch depth >= 10
// the event is dropped with an error log; Publish never panics and never
// surfaces subscriber failures.
func (h *Hub) Publish(event Event) {
	h.mu.Lock()
	if h.depth >= maxDispatchDepth {
		h.mu.Unlock()
		observability.EventsDropped.Inc()
		slog.Error("Hub recursion depth exceeded, dropping event",
			"event_type", event.Type, "source", event.Source, "depth", maxDispatchDepth)
		return
	}
	h.depth++

	h.history = append(h.history, event)
	if len(h.history) > h.historyLimit {
		h.history = h.history[len(h.history)-h.historyLimit:]
	}

	dual := h.dual
	subs := append([]subscriber(nil), h.subscribers[event.Type]...)
	h.mu.Unlock()

	observability.EventsPublished.WithLabelValues(string(event.Type)).Inc()

	if dual != nil {
		h.project(dual, event)
	}

	for _, s := range subs {
		h.dispatch(s, event)
	}

	h.mu.Lock()
	h.depth--
	h.mu.Unlock()
}

// dispatch invokes one subscriber, isolating panics.
func (h *Hub) dispatch(s subscriber, event Event) {
	defer func() {
		if r := recover(); r != nil {
			observability.SubscriberPanics.Inc()
			slog.Error("Subscriber panicked during dispatch",
				"event_type", event.Type, "subscription_id", s.id, "panic", r)
		}
	}()
	s.fn(event)
}

// project applies the ledger side effects for one event.
func (h *Hub) project(dual *ledger.DualLedger, event Event) {
	switch event.Type {
	case TypeFactDiscovered:
		if key := event.String("key"); key != "" {
			dual.Task.AddFact(key, event.Payload["value"])
		}
	case TypeQueryRaised:
		if q := event.String("query"); q != "" {
			dual.Task.AddQuery(q)
		}
	case TypeQueryResolved:
		if q := event.String("query"); q != "" {
			dual.Task.ResolveQuery(q, event.Payload["result"])
		}
	case TypeCodeWritten:
		dual.Progress.RecordIteration(true, "code_written", event.String("summary"))
	case TypeTestPassed:
		dual.Progress.RecordIteration(true, "test_passed", event.String("summary"))
	case TypeTestFailed:
		dual.Progress.RecordIteration(false, "test_failed", event.String("summary"))
	}
}

// RecentEvents returns up to limit most recent events, oldest first.
func (h *Hub) RecentEvents(limit int) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit <= 0 || limit > len(h.history) {
		limit = len(h.history)
	}
	out := make([]Event, limit)
	copy(out, h.history[len(h.history)-limit:])
	return out
}

// Context returns a text dump of the attached ledger, or a placeholder
// when no ledger is attached.
func (h *Hub) Context() string {
	h.mu.Lock()
	dual := h.dual
	h.mu.Unlock()
	if dual == nil {
		return "(no ledger attached)"
	}
	return fmt.Sprintf("%s\n%d events in history", dual.Task.ToContext(), h.HistoryLen())
}

// HistoryLen returns the current history length.
func (h *Hub) HistoryLen() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.history)
}
