// Package conversation manages agent sessions: ordered message timelines,
// branches, summaries, memory context assembly, and idle expiry.
package conversation

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/segmentio/ksuid"

	"github.com/weny2000/AIAgentSample-sub006/internal/apperrors"
	"github.com/weny2000/AIAgentSample-sub006/internal/domain"
	"github.com/weny2000/AIAgentSample-sub006/internal/logging"
	"github.com/weny2000/AIAgentSample-sub006/internal/ports"
)

const (
	// DefaultAppendTimeout bounds one message append.
	DefaultAppendTimeout = 5 * time.Second
	// DefaultIdleExpiry is how long a session may sit without activity.
	DefaultIdleExpiry = 24 * time.Hour
	// periodicSummaryEvery triggers a periodic summary after this many
	// messages since the last one.
	periodicSummaryEvery = 20
	// sessionCacheSize bounds the hot-session LRU.
	sessionCacheSize = 128
	// shortTermMessages is the memory context recency window.
	shortTermMessages = 10
	// appendConflictRetries bounds the seq-allocation retry loop; appends
	// on sibling branches may race on the shared session record.
	appendConflictRetries = 3
)

// Orchestrator coordinates session lifecycle and message flow.
type Orchestrator struct {
	store      ports.SessionStore
	nlp        ports.NLPBackend
	nlpBreaker *apperrors.CircuitBreaker
	bus        eventPublisher
	clock      ports.Clock
	logger     logging.Logger
	cache      *lru.Cache[string, *domain.Session]
	idleExpiry time.Duration

	// timelineMu serializes appends per (session, branch) so sequence
	// numbers are assigned without store-level conflicts.
	mu        sync.Mutex
	timelines map[string]*sync.Mutex
}

// eventPublisher is the fan-out seam; the graph engine's bus satisfies it.
type eventPublisher interface {
	Publish(event domain.Event)
}

// NewOrchestrator wires the conversation orchestrator. nlp, breaker, and bus
// may be nil.
func NewOrchestrator(store ports.SessionStore, nlp ports.NLPBackend, nlpBreaker *apperrors.CircuitBreaker, bus eventPublisher, clock ports.Clock) *Orchestrator {
	if clock == nil {
		clock = ports.SystemClock()
	}
	cache, _ := lru.New[string, *domain.Session](sessionCacheSize)
	return &Orchestrator{
		store:      store,
		nlp:        nlp,
		nlpBreaker: nlpBreaker,
		bus:        bus,
		clock:      clock,
		logger:     logging.NewComponentLogger("conversation"),
		cache:      cache,
		idleExpiry: DefaultIdleExpiry,
		timelines:  make(map[string]*sync.Mutex),
	}
}

// StartSession opens a new active session.
func (o *Orchestrator) StartSession(ctx context.Context, userID, teamID, personaID string) (*domain.Session, error) {
	if userID == "" {
		return nil, apperrors.Validation("user_required", "user id is required")
	}
	now := o.clock.Now()
	session := &domain.Session{
		ID:             ksuid.New().String(),
		UserID:         userID,
		TeamID:         teamID,
		PersonaID:      personaID,
		StartedAt:      now,
		LastActivityAt: now,
		Status:         domain.SessionActive,
	}
	if err := o.store.PutSession(ctx, session); err != nil {
		return nil, err
	}
	o.cache.Add(session.ID, session)
	o.logger.Info("session %s started for user %s", session.ID, userID)
	return session, nil
}

// GetSession reads through the LRU cache.
func (o *Orchestrator) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	if cached, ok := o.cache.Get(sessionID); ok {
		return cached, nil
	}
	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	o.cache.Add(sessionID, session)
	return session, nil
}

// AppendMessage adds one message to the (session, branch) timeline. Ordering
// is timestamp with the session's monotonic sequence breaking ties; appends
// to the same timeline serialize on a keyed mutex.
func (o *Orchestrator) AppendMessage(ctx context.Context, sessionID, branchID string, role domain.MessageRole, content string, refs []domain.MessageReference) (*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultAppendTimeout)
	defer cancel()

	unlock := o.lockTimeline(sessionID, branchID)
	defer unlock()

	// Sibling branches serialize on distinct timeline locks but share the
	// session record, so the seq allocation re-reads and retries on a
	// version conflict instead of surfacing it.
	var session *domain.Session
	for attempt := 0; ; attempt++ {
		var err error
		session, err = o.refreshSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if !session.Status.AcceptsMessages() {
			return nil, apperrors.InvalidState("session_"+string(session.Status),
				"session %s is %s and does not accept messages", sessionID, session.Status)
		}
		if branchID != "" {
			if _, err := o.store.GetBranch(ctx, sessionID, branchID); err != nil {
				return nil, err
			}
		}

		session.MessageSeq++
		session.LastActivityAt = o.clock.Now()
		err = o.store.UpdateSession(ctx, session)
		if err == nil {
			break
		}
		if !apperrors.IsConflict(err) || attempt >= appendConflictRetries-1 {
			return nil, err
		}
	}
	o.cache.Add(sessionID, session)

	msg := &domain.Message{
		ID:         ksuid.New().String(),
		SessionID:  sessionID,
		Role:       role,
		Content:    content,
		Timestamp:  session.LastActivityAt,
		Seq:        session.MessageSeq,
		References: refs,
		BranchID:   branchID,
	}
	if err := o.store.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}

	o.maybePeriodicSummary(ctx, session, branchID)
	return msg, nil
}

// CreateBranch forks an alternative continuation from an existing message.
func (o *Orchestrator) CreateBranch(ctx context.Context, sessionID, parentMessageID, name, description string) (*domain.Branch, error) {
	session, err := o.refreshSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Status.AcceptsMessages() {
		return nil, apperrors.InvalidState("session_"+string(session.Status),
			"session %s is %s; branches need an active session", sessionID, session.Status)
	}
	parent, err := o.store.GetMessage(ctx, sessionID, parentMessageID)
	if err != nil {
		return nil, err
	}

	branch := &domain.Branch{
		ID:              ksuid.New().String(),
		SessionID:       sessionID,
		ParentMessageID: parent.ID,
		Name:            name,
		Description:     description,
		CreatedAt:       o.clock.Now(),
	}
	if err := o.store.PutBranch(ctx, branch); err != nil {
		return nil, err
	}
	o.logger.Info("branch %s created in session %s from message %s", branch.ID, sessionID, parentMessageID)
	return branch, nil
}

// GetHistory returns one ordered page. A branch read sees the ancestor
// timelines up to each fork point followed by the branch's own messages.
func (o *Orchestrator) GetHistory(ctx context.Context, sessionID string, query domain.HistoryQuery) (*domain.HistoryPage, error) {
	if _, err := o.refreshSession(ctx, sessionID); err != nil {
		return nil, err
	}

	messages, err := o.timeline(ctx, sessionID, query.BranchID)
	if err != nil {
		return nil, err
	}
	messages = filterMessages(messages, query)

	total := len(messages)
	offset := query.Offset
	if offset > total {
		offset = total
	}
	limit := query.Limit
	if limit <= 0 || offset+limit > total {
		limit = total - offset
	}

	page := &domain.HistoryPage{
		Messages:   messages[offset : offset+limit],
		TotalCount: total,
		HasMore:    offset+limit < total,
	}
	if summary, err := o.store.LatestSummary(ctx, sessionID, domain.SummaryPeriodic); err == nil && summary != nil {
		page.LatestSummary = summary
	}
	return page, nil
}

// timeline resolves the full ordered view of a branch, walking ancestor
// branches to their fork points.
func (o *Orchestrator) timeline(ctx context.Context, sessionID, branchID string) ([]domain.Message, error) {
	if branchID == "" {
		return o.store.RangeMessages(ctx, sessionID, "")
	}

	branch, err := o.store.GetBranch(ctx, sessionID, branchID)
	if err != nil {
		return nil, err
	}
	parent, err := o.store.GetMessage(ctx, sessionID, branch.ParentMessageID)
	if err != nil {
		return nil, err
	}

	ancestor, err := o.timeline(ctx, sessionID, parent.BranchID)
	if err != nil {
		return nil, err
	}
	var prefix []domain.Message
	for _, msg := range ancestor {
		prefix = append(prefix, msg)
		if msg.ID == parent.ID {
			break
		}
	}

	own, err := o.store.RangeMessages(ctx, sessionID, branchID)
	if err != nil {
		return nil, err
	}
	return append(prefix, own...), nil
}

// BuildMemoryContext assembles the four memory layers for a session.
func (o *Orchestrator) BuildMemoryContext(ctx context.Context, sessionID string) (*domain.MemoryContext, error) {
	session, err := o.refreshSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	messages, err := o.store.RangeMessages(ctx, sessionID, "")
	if err != nil {
		return nil, err
	}

	memory := &domain.MemoryContext{Procedural: session.ActionItems}
	start := len(messages) - shortTermMessages
	if start < 0 {
		start = 0
	}
	memory.ShortTerm = messages[start:]

	summaries, err := o.store.ListSummaries(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for _, s := range summaries {
		memory.LongTerm = append(memory.LongTerm, *s)
	}

	seen := make(map[string]bool)
	for _, msg := range messages {
		for _, ref := range msg.References {
			if !seen[ref.SourceID] {
				seen[ref.SourceID] = true
				memory.Semantic = append(memory.Semantic, ref)
			}
		}
	}
	return memory, nil
}

// EndSession summarizes and closes the session. Ending twice is an error;
// summaries survive the session.
func (o *Orchestrator) EndSession(ctx context.Context, sessionID string) (*domain.Summary, error) {
	session, err := o.refreshSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.SessionActive {
		return nil, apperrors.InvalidState("session_"+string(session.Status),
			"session %s is already %s", sessionID, session.Status)
	}

	summary, err := o.GenerateSummary(ctx, sessionID, domain.SummarySession, nil)
	if err != nil {
		o.logger.Warn("session %s closing without a summary: %v", sessionID, err)
	}

	session.Status = domain.SessionEnded
	session.LastActivityAt = o.clock.Now()
	if err := o.store.UpdateSession(ctx, session); err != nil {
		return nil, err
	}
	o.cache.Remove(sessionID)
	o.logger.Info("session %s ended", sessionID)
	return summary, nil
}

// refreshSession loads the session and lazily expires it when idle too long.
func (o *Orchestrator) refreshSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.SessionActive && o.clock.Now().Sub(session.LastActivityAt) > o.idleExpiry {
		session.Status = domain.SessionExpired
		if err := o.store.UpdateSession(ctx, session); err != nil {
			return nil, err
		}
		o.cache.Remove(sessionID)
	}
	return session, nil
}

func (o *Orchestrator) lockTimeline(sessionID, branchID string) func() {
	key := sessionID + "|" + branchID
	o.mu.Lock()
	m, ok := o.timelines[key]
	if !ok {
		m = &sync.Mutex{}
		o.timelines[key] = m
	}
	o.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func filterMessages(messages []domain.Message, query domain.HistoryQuery) []domain.Message {
	if query.Since == nil && query.Until == nil && len(query.Roles) == 0 {
		return messages
	}
	filtered := make([]domain.Message, 0, len(messages))
	for _, msg := range messages {
		if query.Since != nil && msg.Timestamp.Before(*query.Since) {
			continue
		}
		if query.Until != nil && msg.Timestamp.After(*query.Until) {
			continue
		}
		if len(query.Roles) > 0 && !roleIn(msg.Role, query.Roles) {
			continue
		}
		filtered = append(filtered, msg)
	}
	return filtered
}

func roleIn(role domain.MessageRole, roles []domain.MessageRole) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
