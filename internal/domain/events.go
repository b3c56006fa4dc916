package domain

import "time"

// EventKind identifies the change fan-out families.
type EventKind string

const (
	EventStatusChanged      EventKind = "status_changed"
	EventEligibleToStart    EventKind = "eligible_to_start"
	EventBlockerOpened      EventKind = "blocker_opened"
	EventBlockerResolved    EventKind = "blocker_resolved"
	EventDeliverableVerdict EventKind = "deliverable_verdict"
	EventSessionSummary     EventKind = "session_summary"
	EventNeedsApproval      EventKind = "needs_approval"
)

// Event is one change record pushed to subscribers.
type Event struct {
	ID     string    `json:"id"`
	Kind   EventKind `json:"kind"`
	TaskID string    `json:"task_id,omitempty"`
	TodoID string    `json:"todo_id,omitempty"`
	At     time.Time `json:"at"`

	// Kind-specific payloads; exactly one is set per event.
	StatusChange *StatusChangePayload `json:"status_change,omitempty"`
	Blocker      *Blocker             `json:"blocker,omitempty"`
	Deliverable  *Deliverable         `json:"deliverable,omitempty"`
	Summary      *Summary             `json:"summary,omitempty"`
}

// StatusChangePayload carries the transition detail for status events.
type StatusChangePayload struct {
	From      TodoStatus `json:"from"`
	To        TodoStatus `json:"to"`
	ChangedBy string     `json:"changed_by,omitempty"`
	Override  bool       `json:"override,omitempty"`
}

// EventFilter narrows a subscription. Zero values match everything.
type EventFilter struct {
	TaskID string
	Kinds  []EventKind
}

// Matches reports whether the event passes the filter.
func (f EventFilter) Matches(e Event) bool {
	if f.TaskID != "" && e.TaskID != f.TaskID {
		return false
	}
	if len(f.Kinds) == 0 {
		return true
	}
	for _, kind := range f.Kinds {
		if e.Kind == kind {
			return true
		}
	}
	return false
}
