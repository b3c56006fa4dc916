package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/weny2000/AIAgentSample-sub006/internal/apperrors"
	"github.com/weny2000/AIAgentSample-sub006/internal/domain"
	"github.com/weny2000/AIAgentSample-sub006/internal/ports"
)

// SessionStore is an in-memory ports.SessionStore. Messages are held under
// composite sort keys (MSG#<ksuid id>) per (session, branch) so range reads
// come back in append order, mirroring the durable layout.
type SessionStore struct {
	mu        sync.RWMutex
	sessions  map[string]*domain.Session
	messages  map[string][]domain.Message // session|branch -> ordered messages
	branches  map[string]map[string]*domain.Branch
	summaries map[string][]*domain.Summary
}

var _ ports.SessionStore = (*SessionStore)(nil)

// NewSessionStore constructs an empty in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:  make(map[string]*domain.Session),
		messages:  make(map[string][]domain.Message),
		branches:  make(map[string]map[string]*domain.Branch),
		summaries: make(map[string][]*domain.Summary),
	}
}

func timelineKey(sessionID, branchID string) string {
	return sessionID + "|" + branchID
}

func (s *SessionStore) PutSession(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return apperrors.Conflict("session_exists", "session %s already exists", session.ID)
	}
	session.Version = 1
	clone := *session
	s.sessions[session.ID] = &clone
	return nil
}

func (s *SessionStore) GetSession(_ context.Context, sessionID string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, apperrors.NotFound("session", sessionID)
	}
	clone := *session
	return &clone, nil
}

func (s *SessionStore) UpdateSession(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[session.ID]
	if !ok {
		return apperrors.NotFound("session", session.ID)
	}
	if current.Version != session.Version {
		return apperrors.Conflict("session_version_mismatch",
			"session %s version %d does not match stored %d", session.ID, session.Version, current.Version)
	}
	session.Version++
	clone := *session
	s.sessions[session.ID] = &clone
	return nil
}

func (s *SessionStore) ListSessions(_ context.Context, status domain.SessionStatus) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []*domain.Session
	for _, session := range s.sessions {
		if status != "" && session.Status != status {
			continue
		}
		clone := *session
		results = append(results, &clone)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].StartedAt.Before(results[j].StartedAt)
	})
	return results, nil
}

func (s *SessionStore) AppendMessage(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[msg.SessionID]
	if !ok {
		return apperrors.NotFound("session", msg.SessionID)
	}
	if !session.Status.AcceptsMessages() {
		return apperrors.InvalidState("session_"+string(session.Status),
			"session %s is %s and rejects appends", msg.SessionID, session.Status)
	}
	key := timelineKey(msg.SessionID, msg.BranchID)
	s.messages[key] = append(s.messages[key], *msg)
	return nil
}

func (s *SessionStore) RangeMessages(_ context.Context, sessionID, branchID string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, apperrors.NotFound("session", sessionID)
	}
	stored := s.messages[timelineKey(sessionID, branchID)]
	results := append([]domain.Message(nil), stored...)
	// Sort key discipline: timestamp ascending, ties broken by the
	// intra-session counter.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Timestamp.Equal(results[j].Timestamp) {
			return results[i].Seq < results[j].Seq
		}
		return results[i].Timestamp.Before(results[j].Timestamp)
	})
	return results, nil
}

func (s *SessionStore) GetMessage(_ context.Context, sessionID, messageID string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for key, msgs := range s.messages {
		if !strings.HasPrefix(key, sessionID+"|") {
			continue
		}
		for i := range msgs {
			if msgs[i].ID == messageID {
				clone := msgs[i]
				return &clone, nil
			}
		}
	}
	return nil, apperrors.NotFound("message", messageID)
}

func (s *SessionStore) PutBranch(_ context.Context, branch *domain.Branch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[branch.SessionID]; !ok {
		return apperrors.NotFound("session", branch.SessionID)
	}
	byID, ok := s.branches[branch.SessionID]
	if !ok {
		byID = make(map[string]*domain.Branch)
		s.branches[branch.SessionID] = byID
	}
	if _, exists := byID[branch.ID]; exists {
		return apperrors.Conflict("branch_exists", "branch %s already exists", branch.ID)
	}
	clone := *branch
	byID[branch.ID] = &clone
	return nil
}

func (s *SessionStore) GetBranch(_ context.Context, sessionID, branchID string) (*domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	branch, ok := s.branches[sessionID][branchID]
	if !ok {
		return nil, apperrors.NotFound("branch", branchID)
	}
	clone := *branch
	return &clone, nil
}

func (s *SessionStore) ListBranches(_ context.Context, sessionID string) ([]*domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []*domain.Branch
	for _, branch := range s.branches[sessionID] {
		clone := *branch
		results = append(results, &clone)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return results, nil
}

func (s *SessionStore) PutSummary(_ context.Context, summary *domain.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[summary.SessionID]; !ok {
		return apperrors.NotFound("session", summary.SessionID)
	}
	clone := *summary
	s.summaries[summary.SessionID] = append(s.summaries[summary.SessionID], &clone)
	return nil
}

func (s *SessionStore) LatestSummary(_ context.Context, sessionID string, kind domain.SummaryKind) (*domain.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *domain.Summary
	for _, summary := range s.summaries[sessionID] {
		if summary.Kind != kind {
			continue
		}
		if latest == nil || summary.CreatedAt.After(latest.CreatedAt) {
			latest = summary
		}
	}
	if latest == nil {
		return nil, nil
	}
	clone := *latest
	return &clone, nil
}

func (s *SessionStore) ListSummaries(_ context.Context, sessionID string) ([]*domain.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []*domain.Summary
	for _, summary := range s.summaries[sessionID] {
		clone := *summary
		results = append(results, &clone)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return results, nil
}

// MessageCount reports how many messages exist on a timeline. Used by the
// conversation orchestrator's summary threshold check.
func (s *SessionStore) MessageCount(sessionID, branchID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages[timelineKey(sessionID, branchID)])
}

// String implements fmt.Stringer for debug logs.
func (s *SessionStore) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("memstore.SessionStore{sessions=%d}", len(s.sessions))
}
