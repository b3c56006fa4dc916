package conversation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weny2000/AIAgentSample-sub006/internal/apperrors"
	"github.com/weny2000/AIAgentSample-sub006/internal/domain"
	"github.com/weny2000/AIAgentSample-sub006/internal/ports"
	"github.com/weny2000/AIAgentSample-sub006/internal/store/memstore"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *memstore.SessionStore, *ports.FakeClock) {
	t.Helper()
	store := memstore.NewSessionStore()
	clock := ports.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	return NewOrchestrator(store, nil, nil, nil, clock), store, clock
}

func appendN(t *testing.T, o *Orchestrator, clock *ports.FakeClock, sessionID, branchID string, n int) []*domain.Message {
	t.Helper()
	messages := make([]*domain.Message, 0, n)
	for i := 0; i < n; i++ {
		clock.Advance(time.Second)
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAgent
		}
		msg, err := o.AppendMessage(context.Background(), sessionID, branchID, role,
			fmt.Sprintf("message %d about the deployment rollout plan", i+1), nil)
		require.NoError(t, err)
		messages = append(messages, msg)
	}
	return messages
}

func TestAppendAssignsMonotonicSequence(t *testing.T) {
	o, _, clock := newTestOrchestrator(t)
	session, err := o.StartSession(context.Background(), "user-1", "team-1", "")
	require.NoError(t, err)

	messages := appendN(t, o, clock, session.ID, "", 3)
	for i, msg := range messages {
		require.Equal(t, int64(i+1), msg.Seq)
	}

	page, err := o.GetHistory(context.Background(), session.ID, domain.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, page.Messages, 3)
	for i := 1; i < len(page.Messages); i++ {
		require.Less(t, page.Messages[i-1].Seq, page.Messages[i].Seq)
	}
}

// conflictingSessionStore fails the next n session updates with a version
// conflict, mimicking a sibling-branch append racing on the session record.
type conflictingSessionStore struct {
	ports.SessionStore
	remaining int
}

func (s *conflictingSessionStore) UpdateSession(ctx context.Context, session *domain.Session) error {
	if s.remaining > 0 {
		s.remaining--
		return apperrors.Conflict("session_version_mismatch",
			"session %s was updated concurrently", session.ID)
	}
	return s.SessionStore.UpdateSession(ctx, session)
}

func TestAppendRetriesSessionVersionConflict(t *testing.T) {
	clock := ports.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	store := &conflictingSessionStore{SessionStore: memstore.NewSessionStore()}
	o := NewOrchestrator(store, nil, nil, nil, clock)
	ctx := context.Background()

	session, err := o.StartSession(ctx, "user-1", "team-1", "")
	require.NoError(t, err)

	store.remaining = 2
	msg, err := o.AppendMessage(ctx, session.ID, "", domain.RoleUser, "kick off the rollout", nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), msg.Seq)

	// Exhausting the retry budget surfaces the conflict.
	store.remaining = appendConflictRetries + 1
	_, err = o.AppendMessage(ctx, session.ID, "", domain.RoleUser, "second message", nil)
	require.Error(t, err)
	require.True(t, apperrors.IsConflict(err))
}

func TestBranchSeesAncestorPrefixOnly(t *testing.T) {
	o, _, clock := newTestOrchestrator(t)
	ctx := context.Background()
	session, err := o.StartSession(ctx, "user-1", "", "")
	require.NoError(t, err)

	main := appendN(t, o, clock, session.ID, "", 3)

	branch, err := o.CreateBranch(ctx, session.ID, main[1].ID, "alt", "explore another angle")
	require.NoError(t, err)

	clock.Advance(time.Second)
	branched, err := o.AppendMessage(ctx, session.ID, branch.ID, domain.RoleUser,
		"what if we roll out by region instead", nil)
	require.NoError(t, err)

	branchPage, err := o.GetHistory(ctx, session.ID, domain.HistoryQuery{BranchID: branch.ID})
	require.NoError(t, err)
	require.Len(t, branchPage.Messages, 3)
	require.Equal(t, main[0].ID, branchPage.Messages[0].ID)
	require.Equal(t, main[1].ID, branchPage.Messages[1].ID)
	require.Equal(t, branched.ID, branchPage.Messages[2].ID)

	// The main timeline is untouched by the branch.
	mainPage, err := o.GetHistory(ctx, session.ID, domain.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, mainPage.Messages, 3)
	for _, msg := range mainPage.Messages {
		require.NotEqual(t, branched.ID, msg.ID)
	}
}

func TestIdleSessionExpiresLazily(t *testing.T) {
	o, _, clock := newTestOrchestrator(t)
	ctx := context.Background()
	session, err := o.StartSession(ctx, "user-1", "", "")
	require.NoError(t, err)
	appendN(t, o, clock, session.ID, "", 1)

	clock.Advance(DefaultIdleExpiry + time.Hour)

	_, err = o.AppendMessage(ctx, session.ID, "", domain.RoleUser, "anyone still here", nil)
	require.Error(t, err)
	require.Equal(t, "session_expired", apperrors.CodeOf(err))

	refreshed, err := o.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SessionExpired, refreshed.Status)
}

func TestEndSessionSummarizesAndCloses(t *testing.T) {
	o, _, clock := newTestOrchestrator(t)
	ctx := context.Background()
	session, err := o.StartSession(ctx, "user-1", "", "")
	require.NoError(t, err)
	appendN(t, o, clock, session.ID, "", 4)

	summary, err := o.EndSession(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, summary)
	require.Equal(t, domain.SummarySession, summary.Kind)
	require.NotEmpty(t, summary.Text)

	_, err = o.AppendMessage(ctx, session.ID, "", domain.RoleUser, "one more thing", nil)
	require.Error(t, err)
	require.Equal(t, "session_ended", apperrors.CodeOf(err))

	_, err = o.EndSession(ctx, session.ID)
	require.Error(t, err)
}

func TestPeriodicSummaryFiresOnCadence(t *testing.T) {
	o, store, clock := newTestOrchestrator(t)
	ctx := context.Background()
	session, err := o.StartSession(ctx, "user-1", "", "")
	require.NoError(t, err)

	appendN(t, o, clock, session.ID, "", periodicSummaryEvery-1)
	latest, err := store.LatestSummary(ctx, session.ID, domain.SummaryPeriodic)
	require.NoError(t, err)
	require.Nil(t, latest)

	appendN(t, o, clock, session.ID, "", 1)
	latest, err = store.LatestSummary(ctx, session.ID, domain.SummaryPeriodic)
	require.NoError(t, err)
	require.NotNil(t, latest)

	page, err := o.GetHistory(ctx, session.ID, domain.HistoryQuery{})
	require.NoError(t, err)
	require.NotNil(t, page.LatestSummary)
}

func TestHistoryPagingAndRoleFilter(t *testing.T) {
	o, _, clock := newTestOrchestrator(t)
	ctx := context.Background()
	session, err := o.StartSession(ctx, "user-1", "", "")
	require.NoError(t, err)
	appendN(t, o, clock, session.ID, "", 5)

	page, err := o.GetHistory(ctx, session.ID, domain.HistoryQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	require.Equal(t, 5, page.TotalCount)
	require.True(t, page.HasMore)

	page, err = o.GetHistory(ctx, session.ID, domain.HistoryQuery{Limit: 2, Offset: 4})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	require.False(t, page.HasMore)

	page, err = o.GetHistory(ctx, session.ID, domain.HistoryQuery{Roles: []domain.MessageRole{domain.RoleAgent}})
	require.NoError(t, err)
	for _, msg := range page.Messages {
		require.Equal(t, domain.RoleAgent, msg.Role)
	}
	require.Equal(t, 2, page.TotalCount)
}

func TestBuildMemoryContextLayers(t *testing.T) {
	o, _, clock := newTestOrchestrator(t)
	ctx := context.Background()
	session, err := o.StartSession(ctx, "user-1", "", "")
	require.NoError(t, err)

	refs := []domain.MessageReference{{SourceID: "kb-1", SourceType: "runbook", Title: "Deploy runbook"}}
	clock.Advance(time.Second)
	_, err = o.AppendMessage(ctx, session.ID, "", domain.RoleAgent, "see the deploy runbook for the rollout order", refs)
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = o.AppendMessage(ctx, session.ID, "", domain.RoleAgent, "the runbook also covers rollback", refs)
	require.NoError(t, err)
	appendN(t, o, clock, session.ID, "", 12)

	_, err = o.GenerateSummary(ctx, session.ID, domain.SummaryTopic, nil)
	require.NoError(t, err)

	memory, err := o.BuildMemoryContext(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, memory.ShortTerm, shortTermMessages)
	require.NotEmpty(t, memory.LongTerm)
	require.Len(t, memory.Semantic, 1, "references dedupe by source id")
}

func TestAppendToUnknownBranchFails(t *testing.T) {
	o, _, clock := newTestOrchestrator(t)
	ctx := context.Background()
	session, err := o.StartSession(ctx, "user-1", "", "")
	require.NoError(t, err)
	clock.Advance(time.Second)

	_, err = o.AppendMessage(ctx, session.ID, "no-such-branch", domain.RoleUser, "hello", nil)
	require.Error(t, err)
}

func TestSweepExpiredClosesIdleSessions(t *testing.T) {
	o, _, clock := newTestOrchestrator(t)
	ctx := context.Background()
	idle, err := o.StartSession(ctx, "user-1", "", "")
	require.NoError(t, err)

	clock.Advance(DefaultIdleExpiry + time.Minute)
	fresh, err := o.StartSession(ctx, "user-2", "", "")
	require.NoError(t, err)

	swept, err := o.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, swept)

	expired, err := o.GetSession(ctx, idle.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SessionExpired, expired.Status)

	active, err := o.GetSession(ctx, fresh.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SessionActive, active.Status)
}
