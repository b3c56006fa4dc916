package domain

import "time"

// SessionStatus represents the lifecycle state of a conversation session.
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionEnded   SessionStatus = "ended"
	SessionExpired SessionStatus = "expired"
)

// AcceptsMessages reports whether the session still takes appends.
func (s SessionStatus) AcceptsMessages() bool {
	return s == SessionActive
}

// Session is a conversation thread between a user and the agent.
type Session struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	TeamID         string        `json:"team_id,omitempty"`
	PersonaID      string        `json:"persona_id,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	LastActivityAt time.Time     `json:"last_activity_at"`
	Status         SessionStatus `json:"status"`
	ContextRef     string        `json:"context_ref,omitempty"`

	// MessageSeq is the monotonic intra-session counter used to break
	// timestamp ties in message ordering.
	MessageSeq int64 `json:"message_seq"`

	// ActionItems tracks open procedural items for memory context assembly.
	ActionItems []string `json:"action_items,omitempty"`

	Version int64  `json:"version"`
	TTL     *int64 `json:"ttl,omitempty"`
}

// MessageRole identifies the author class of a message.
type MessageRole string

const (
	RoleUser   MessageRole = "user"
	RoleAgent  MessageRole = "agent"
	RoleSystem MessageRole = "system"
)

// MessageReference links a message to an external knowledge source.
type MessageReference struct {
	SourceID   string `json:"source_id"`
	SourceType string `json:"source_type,omitempty"`
	Title      string `json:"title,omitempty"`
}

// Message is one append-only conversation entry. Messages are immutable once
// stored; ordering within (sessionID, branchID) is timestamp then Seq.
type Message struct {
	ID              string             `json:"id"`
	SessionID       string             `json:"session_id"`
	Role            MessageRole        `json:"role"`
	Content         string             `json:"content"`
	Timestamp       time.Time          `json:"timestamp"`
	Seq             int64              `json:"seq"`
	References      []MessageReference `json:"references,omitempty"`
	BranchID        string             `json:"branch_id,omitempty"`
	ParentMessageID string             `json:"parent_message_id,omitempty"`
}

// Branch is an alternative linear continuation from a parent message.
type Branch struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	ParentMessageID string    `json:"parent_message_id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// SummaryKind distinguishes the summary families; latest-per-kind is
// authoritative.
type SummaryKind string

const (
	SummarySession  SummaryKind = "session"
	SummaryPeriodic SummaryKind = "periodic"
	SummaryTopic    SummaryKind = "topic"
)

// TimeRange bounds a summary or a report window.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls inside the range. Zero bounds are open.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// Summary is a derived, read-only digest of a session or a portion of it.
type Summary struct {
	ID          string      `json:"id"`
	SessionID   string      `json:"session_id"`
	Kind        SummaryKind `json:"kind"`
	Text        string      `json:"text"`
	KeyTopics   []string    `json:"key_topics,omitempty"`
	ActionItems []string    `json:"action_items,omitempty"`
	Insights    string      `json:"insights,omitempty"`
	Range       *TimeRange  `json:"range,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// HistoryQuery narrows GetHistory reads.
type HistoryQuery struct {
	Limit    int
	Offset   int
	BranchID string
	Since    *time.Time
	Until    *time.Time
	Roles    []MessageRole
}

// HistoryPage is one page of ordered messages.
type HistoryPage struct {
	Messages      []Message `json:"messages"`
	TotalCount    int       `json:"total_count"`
	HasMore       bool      `json:"has_more"`
	LatestSummary *Summary  `json:"latest_summary,omitempty"`
}

// MemoryContext is the assembled context handed to the analysis pipeline and
// graph engine when they consult a conversation.
type MemoryContext struct {
	ShortTerm  []Message          `json:"short_term"`
	LongTerm   []Summary          `json:"long_term"`
	Semantic   []MessageReference `json:"semantic"`
	Procedural []string           `json:"procedural"`
}
