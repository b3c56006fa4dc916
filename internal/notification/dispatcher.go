// Package notification delivers task and todo events to external channels.
// Dispatch is best effort and never blocks a status-change path.
package notification

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/weny2000/AIAgentSample-sub006/internal/apperrors"
	"github.com/weny2000/AIAgentSample-sub006/internal/domain"
	"github.com/weny2000/AIAgentSample-sub006/internal/logging"
	"github.com/weny2000/AIAgentSample-sub006/internal/ports"
)

// Trigger routes matching events to a recipient over a channel.
type Trigger struct {
	ID        string
	TaskID    string
	Kinds     []domain.EventKind
	Channel   ports.NotificationChannel
	Recipient string
	Urgency   ports.NotificationUrgency
}

func (t Trigger) matches(event domain.Event) bool {
	if t.TaskID != "" && event.TaskID != t.TaskID {
		return false
	}
	if len(t.Kinds) == 0 {
		return true
	}
	for _, kind := range t.Kinds {
		if kind == event.Kind {
			return true
		}
	}
	return false
}

// Dispatcher holds the trigger registry and pushes events through the
// transport behind a circuit breaker.
type Dispatcher struct {
	transport ports.NotificationTransport
	breaker   *apperrors.CircuitBreaker
	logger    logging.Logger

	mu       sync.RWMutex
	triggers map[string]Trigger // keyed (taskID, triggerID)
}

// NewDispatcher wires a dispatcher. breaker may be nil to send unguarded.
func NewDispatcher(transport ports.NotificationTransport, breaker *apperrors.CircuitBreaker) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		breaker:   breaker,
		logger:    logging.NewComponentLogger("notification"),
		triggers:  make(map[string]Trigger),
	}
}

// Register adds or replaces a trigger and returns its id.
func (d *Dispatcher) Register(trigger Trigger) string {
	if trigger.ID == "" {
		trigger.ID = uuid.NewString()
	}
	if trigger.Urgency == "" {
		trigger.Urgency = ports.UrgencyNormal
	}
	d.mu.Lock()
	d.triggers[trigger.TaskID+"|"+trigger.ID] = trigger
	d.mu.Unlock()
	return trigger.ID
}

// Unregister removes a trigger; unknown ids are a no-op.
func (d *Dispatcher) Unregister(taskID, triggerID string) {
	d.mu.Lock()
	delete(d.triggers, taskID+"|"+triggerID)
	d.mu.Unlock()
}

// Triggers lists the registered triggers for a task.
func (d *Dispatcher) Triggers(taskID string) []Trigger {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Trigger
	for _, t := range d.triggers {
		if t.TaskID == taskID {
			out = append(out, t)
		}
	}
	return out
}

// Dispatch fans one event out to every matching trigger. Failures are logged
// and counted, never returned: callers on the status-change path must not
// stall on delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, event domain.Event) int {
	d.mu.RLock()
	var matched []Trigger
	for _, t := range d.triggers {
		if t.matches(event) {
			matched = append(matched, t)
		}
	}
	d.mu.RUnlock()

	delivered := 0
	for _, t := range matched {
		notification := ports.Notification{
			// Deterministic per (event, trigger) so transports can dedupe.
			MessageID: event.ID + "|" + t.ID,
			Recipient: t.Recipient,
			Channel:   t.Channel,
			Subject:   subject(event),
			Body:      body(event),
			Urgency:   t.Urgency,
		}
		if err := d.send(ctx, notification); err != nil {
			d.logger.Warn("notification %s to %s failed: %v", notification.MessageID, t.Recipient, err)
			continue
		}
		delivered++
	}
	return delivered
}

// Run consumes an event channel until it closes or the context ends.
func (d *Dispatcher) Run(ctx context.Context, events <-chan domain.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			d.Dispatch(ctx, event)
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, n ports.Notification) error {
	if d.breaker == nil {
		return d.transport.Send(ctx, n)
	}
	return d.breaker.Execute(ctx, func(ctx context.Context) error {
		return d.transport.Send(ctx, n)
	})
}

func subject(event domain.Event) string {
	switch event.Kind {
	case domain.EventStatusChanged:
		return fmt.Sprintf("Todo status changed (%s)", event.TodoID)
	case domain.EventEligibleToStart:
		return fmt.Sprintf("Todo ready to start (%s)", event.TodoID)
	case domain.EventBlockerOpened:
		return "Blocker detected"
	case domain.EventBlockerResolved:
		return "Blocker resolved"
	case domain.EventDeliverableVerdict:
		return "Deliverable verdict"
	case domain.EventNeedsApproval:
		return "Task needs approval"
	default:
		return string(event.Kind)
	}
}

func body(event domain.Event) string {
	switch {
	case event.StatusChange != nil:
		return fmt.Sprintf("todo %s moved from %s to %s", event.TodoID, event.StatusChange.From, event.StatusChange.To)
	case event.Blocker != nil:
		return fmt.Sprintf("[%s/%s] %s", event.Blocker.Kind, event.Blocker.Severity, event.Blocker.Description)
	case event.Deliverable != nil:
		return fmt.Sprintf("deliverable %s is %s: %s", event.Deliverable.FileName, event.Deliverable.Status, event.Deliverable.StatusReason)
	case event.Summary != nil:
		return event.Summary.Text
	default:
		return fmt.Sprintf("event %s on task %s", event.Kind, event.TaskID)
	}
}
