// Package events implements the domain event bus (C10): an in-process
// publish/subscribe fan-out for job, worker and pool lifecycle events,
// consumed by observers such as audit logging and metrics. Adapted from
// the teacher's Broker, generalized to typed subscriptions and bounded
// per-subscriber buffers with drop-oldest overflow (§4.9).
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hodei-pipelines/orchestrator/pkg/ids"
)

// Kind tags a domain event (§3).
type Kind string

const (
	JobQueued              Kind = "JobQueued"
	JobStarted             Kind = "JobStarted"
	JobCompleted           Kind = "JobCompleted"
	JobFailed              Kind = "JobFailed"
	JobCancelled           Kind = "JobCancelled"
	WorkerRegistered       Kind = "WorkerRegistered"
	WorkerDisconnected     Kind = "WorkerDisconnected"
	PoolUtilizationChanged Kind = "PoolUtilizationChanged"
	AssignmentDispatched   Kind = "AssignmentDispatched"
)

// Event is an immutable, behavior-free record (§3).
type Event struct {
	ID          string
	Kind        Kind
	Timestamp   time.Time
	JobID       string
	WorkerID    string
	PoolID      string
	ExecutionID string
	Message     string
}

// DefaultBufferSize is the per-subscriber bound named in §4.9.
const DefaultBufferSize = 1000

type subscriber struct {
	ch      chan Event
	kind    Kind // empty means "all kinds"
	dropped int64
}

// Bus is the process-wide fan-out. The zero value is not usable; use New.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	bufferSize  int
}

// New creates an empty Bus with the given per-subscriber buffer size. A
// size <= 0 uses DefaultBufferSize.
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Bus{
		subscribers: make(map[*subscriber]struct{}),
		bufferSize:  bufferSize,
	}
}

// Subscription is a handle returned by Subscribe/SubscribeToAll.
type Subscription struct {
	C   <-chan Event
	bus *Bus
	sub *subscriber
}

// Dropped returns how many events this subscription has dropped due to a
// full buffer (the "drop-counter metric" named in §4.9).
func (s *Subscription) Dropped() int64 {
	return atomic.LoadInt64(&s.sub.dropped)
}

// Close unsubscribes and releases the channel.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s.sub)
}

// Subscribe returns a Subscription that only receives events of the given
// kind.
func (b *Bus) Subscribe(kind Kind) *Subscription {
	return b.subscribe(kind)
}

// SubscribeToAll returns a Subscription that receives every event.
func (b *Bus) SubscribeToAll() *Subscription {
	return b.subscribe("")
}

func (b *Bus) subscribe(kind Kind) *Subscription {
	sub := &subscriber{
		ch:   make(chan Event, b.bufferSize),
		kind: kind,
	}
	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()
	return &Subscription{C: sub.ch, bus: b, sub: sub}
}

func (b *Bus) unsubscribe(sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub.ch)
	}
}

// Publish delivers event to every matching subscriber. Per-producer order
// is preserved because Publish is synchronous with respect to the caller;
// callers that need strict ordering across goroutines must serialize their
// own Publish calls (§4.9, §5).
func (b *Bus) Publish(event Event) {
	if event.ID == "" {
		event.ID = ids.New("evt")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = ids.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		if sub.kind != "" && sub.kind != event.Kind {
			continue
		}
		deliver(sub, event)
	}
}

// deliver sends event to sub's channel, dropping the oldest buffered event
// and incrementing the drop counter if the channel is full.
func deliver(sub *subscriber, event Event) {
	select {
	case sub.ch <- event:
		return
	default:
	}

	select {
	case <-sub.ch:
		atomic.AddInt64(&sub.dropped, 1)
	default:
	}

	select {
	case sub.ch <- event:
	default:
		// Lost the race to another publisher; count it dropped too.
		atomic.AddInt64(&sub.dropped, 1)
	}
}

// SubscriberCount reports the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
