package todograph

import (
	"sync"

	"github.com/google/uuid"

	"github.com/weny2000/AIAgentSample-sub006/internal/domain"
	"github.com/weny2000/AIAgentSample-sub006/internal/logging"
)

// DefaultSubscriberBuffer is the per-subscriber channel depth.
const DefaultSubscriberBuffer = 64

// Bus fans change events out to subscribers. Publishing never blocks the
// status-change path: a full subscriber buffer drops its oldest event.
type Bus struct {
	logger logging.Logger

	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	closed bool
}

type subscriber struct {
	filter domain.EventFilter
	ch     chan domain.Event
}

// NewBus constructs an event bus.
func NewBus() *Bus {
	return &Bus{
		logger: logging.NewComponentLogger("event-bus"),
		subs:   make(map[int]*subscriber),
	}
}

// Subscribe registers a filtered subscriber. The returned cancel func removes
// the subscription and closes the channel; it is safe to call twice.
func (b *Bus) Subscribe(filter domain.EventFilter, buffer int) (<-chan domain.Event, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	sub := &subscriber{filter: filter, ch: make(chan domain.Event, buffer)}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub.ch)
			}
			b.mu.Unlock()
		})
	}
	return sub.ch, cancel
}

// Publish delivers the event to every matching subscriber without blocking.
func (b *Bus) Publish(event domain.Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if !sub.filter.Matches(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Drop the oldest so slow consumers see recent state.
			select {
			case dropped := <-sub.ch:
				b.logger.Debug("subscriber lagging, dropped event %s (%s)", dropped.ID, dropped.Kind)
			default:
			}
			select {
			case sub.ch <- event:
			default:
			}
		}
	}
}

// Close removes all subscribers and closes their channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
