package todograph

import (
	"context"
	"testing"
	"time"

	"github.com/weny2000/AIAgentSample-sub006/internal/apperrors"
	"github.com/weny2000/AIAgentSample-sub006/internal/domain"
	"github.com/weny2000/AIAgentSample-sub006/internal/ports"
	"github.com/weny2000/AIAgentSample-sub006/internal/store/memstore"
)

func newTestEngine(t *testing.T) (*Engine, *memstore.TaskStore, *Bus, *ports.FakeClock) {
	t.Helper()
	store := memstore.NewTaskStore()
	bus := NewBus()
	clock := ports.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	t.Cleanup(bus.Close)
	return NewEngine(store, bus, clock, nil), store, bus, clock
}

func seedChain(t *testing.T, store *memstore.TaskStore, clock ports.Clock) (string, []*domain.TodoItem) {
	t.Helper()
	ctx := context.Background()
	taskID := "task-1"
	task := &domain.WorkTask{ID: taskID, Title: "Chain", Status: domain.TaskAnalyzed, Priority: domain.PriorityMedium}
	if err := store.PutTask(ctx, task); err != nil {
		t.Fatalf("PutTask: %v", err)
	}

	now := clock.Now()
	todos := []*domain.TodoItem{
		{ID: "todo-a", TaskID: taskID, Title: "Design schema", Status: domain.TodoPending, EstimatedHours: 4, CreatedAt: now},
		{ID: "todo-b", TaskID: taskID, Title: "Implement service", Status: domain.TodoPending, EstimatedHours: 8, Dependencies: []string{"todo-a"}, CreatedAt: now.Add(time.Second)},
		{ID: "todo-c", TaskID: taskID, Title: "Test service", Status: domain.TodoPending, EstimatedHours: 4, Dependencies: []string{"todo-b"}, CreatedAt: now.Add(2 * time.Second)},
	}
	for _, todo := range todos {
		if err := store.PutTodo(ctx, todo); err != nil {
			t.Fatalf("PutTodo(%s): %v", todo.ID, err)
		}
	}
	return taskID, todos
}

func TestCompleteWithOpenDependenciesRejected(t *testing.T) {
	engine, store, _, clock := newTestEngine(t)
	seedChain(t, store, clock)

	_, _, err := engine.UpdateStatus(context.Background(), StatusUpdate{
		TodoID: "todo-b", To: domain.TodoCompleted, ChangedBy: "user-1",
	})
	if err == nil {
		t.Fatal("completing with open dependencies must fail")
	}
	if apperrors.CodeOf(err) != "dependencies_not_satisfied" {
		t.Fatalf("error code = %s, want dependencies_not_satisfied", apperrors.CodeOf(err))
	}

	todo, getErr := store.GetTodo(context.Background(), "todo-b")
	if getErr != nil {
		t.Fatalf("GetTodo: %v", getErr)
	}
	if todo.Status != domain.TodoPending {
		t.Fatalf("rejected transition mutated status to %s", todo.Status)
	}
}

func TestCompletionCascadesEligibility(t *testing.T) {
	engine, store, bus, clock := newTestEngine(t)
	taskID, _ := seedChain(t, store, clock)
	ctx := context.Background()

	if _, _, err := engine.UpdateStatus(ctx, StatusUpdate{
		TodoID: "todo-a", To: domain.TodoInProgress, ChangedBy: "user-1",
	}); err != nil {
		t.Fatalf("start todo-a: %v", err)
	}

	events, cancel := bus.Subscribe(domain.EventFilter{TaskID: taskID}, 16)
	defer cancel()

	updated, impact, err := engine.UpdateStatus(ctx, StatusUpdate{
		TodoID: "todo-a", To: domain.TodoCompleted, ChangedBy: "user-1",
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if updated.Status != domain.TodoCompleted {
		t.Fatalf("status = %s, want completed", updated.Status)
	}
	if len(impact.UnblockedTodoIDs) != 1 || impact.UnblockedTodoIDs[0] != "todo-b" {
		t.Fatalf("unblocked = %v, want [todo-b]", impact.UnblockedTodoIDs)
	}
	if !impact.OnCriticalPath {
		t.Fatal("todo-a lies on the only path and must be critical")
	}

	kinds := map[domain.EventKind]int{}
	for i := 0; i < 2; i++ {
		select {
		case event := <-events:
			kinds[event.Kind]++
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
	if kinds[domain.EventEligibleToStart] != 1 || kinds[domain.EventStatusChanged] != 1 {
		t.Fatalf("event kinds = %v, want one eligible_to_start and one status_changed", kinds)
	}
}

func TestCompletedTodoIsImmutable(t *testing.T) {
	engine, store, _, clock := newTestEngine(t)
	seedChain(t, store, clock)
	ctx := context.Background()

	if _, _, err := engine.UpdateStatus(ctx, StatusUpdate{TodoID: "todo-a", To: domain.TodoInProgress}); err != nil {
		t.Fatalf("start todo-a: %v", err)
	}
	if _, _, err := engine.UpdateStatus(ctx, StatusUpdate{TodoID: "todo-a", To: domain.TodoCompleted}); err != nil {
		t.Fatalf("complete todo-a: %v", err)
	}

	_, _, err := engine.UpdateStatus(ctx, StatusUpdate{TodoID: "todo-a", To: domain.TodoPending, Force: true})
	if err == nil {
		t.Fatal("completed todo must be immutable, even with force")
	}
	if apperrors.CodeOf(err) != "todo_completed_immutable" {
		t.Fatalf("error code = %s, want todo_completed_immutable", apperrors.CodeOf(err))
	}
}

func TestForceOverrideRecordsHistory(t *testing.T) {
	engine, store, _, clock := newTestEngine(t)
	seedChain(t, store, clock)
	ctx := context.Background()

	if _, _, err := engine.UpdateStatus(ctx, StatusUpdate{TodoID: "todo-b", To: domain.TodoInProgress}); err != nil {
		t.Fatalf("start todo-b: %v", err)
	}
	updated, _, err := engine.UpdateStatus(ctx, StatusUpdate{
		TodoID: "todo-b", To: domain.TodoCompleted, ChangedBy: "admin-1", Force: true, Reason: "descoping",
	})
	if err != nil {
		t.Fatalf("forced completion: %v", err)
	}
	if len(updated.StatusHistory) == 0 {
		t.Fatal("no history recorded")
	}
	last := updated.StatusHistory[len(updated.StatusHistory)-1]
	if !last.Override {
		t.Fatal("forced completion must record the override")
	}
	if last.ChangedBy != "admin-1" {
		t.Fatalf("history actor = %s, want admin-1", last.ChangedBy)
	}
}

func TestMandatoryCriteriaGateCompletion(t *testing.T) {
	engine, store, _, clock := newTestEngine(t)
	ctx := context.Background()
	if err := store.PutTask(ctx, &domain.WorkTask{ID: "task-2", Status: domain.TaskAnalyzed}); err != nil {
		t.Fatalf("PutTask: %v", err)
	}
	todo := &domain.TodoItem{
		ID: "todo-x", TaskID: "task-2", Title: "Ship doc", Status: domain.TodoInProgress,
		CompletionCriteria: []domain.CompletionCriterion{
			{ID: "c1", Description: "doc approved", Mandatory: true, Met: false},
		},
		CreatedAt: clock.Now(),
	}
	if err := store.PutTodo(ctx, todo); err != nil {
		t.Fatalf("PutTodo: %v", err)
	}

	_, _, err := engine.UpdateStatus(ctx, StatusUpdate{TodoID: "todo-x", To: domain.TodoCompleted})
	if apperrors.CodeOf(err) != "completion_criteria_not_met" {
		t.Fatalf("error code = %s, want completion_criteria_not_met", apperrors.CodeOf(err))
	}
}

func TestIdentifyBlockersFindsOverdueAndBlocked(t *testing.T) {
	engine, store, _, clock := newTestEngine(t)
	taskID, todos := seedChain(t, store, clock)
	ctx := context.Background()

	// Block the head of the chain with an approval reason.
	if _, _, err := engine.UpdateStatus(ctx, StatusUpdate{
		TodoID: "todo-a", To: domain.TodoBlocked, Reason: "waiting for security approval",
	}); err != nil {
		t.Fatalf("block todo-a: %v", err)
	}

	// Make the tail overdue.
	due := clock.Now().Add(-48 * time.Hour)
	tail, err := store.GetTodo(ctx, todos[2].ID)
	if err != nil {
		t.Fatalf("GetTodo: %v", err)
	}
	tail.DueDate = &due
	if err := store.UpdateTodo(ctx, tail); err != nil {
		t.Fatalf("UpdateTodo: %v", err)
	}

	blockers, err := engine.IdentifyBlockers(ctx, taskID)
	if err != nil {
		t.Fatalf("IdentifyBlockers: %v", err)
	}

	byKind := map[domain.BlockerKind]int{}
	for _, b := range blockers {
		byKind[b.Kind]++
	}
	if byKind[domain.BlockerApproval] == 0 {
		t.Fatalf("no approval blocker for the blocked todo: %v", byKind)
	}
	if byKind[domain.BlockerDependency] == 0 {
		t.Fatalf("no dependency blocker for the stalled dependent: %v", byKind)
	}
	if byKind[domain.BlockerTimeline] == 0 {
		t.Fatalf("no timeline blocker for the overdue todo: %v", byKind)
	}

	// Detection is idempotent.
	again, err := engine.IdentifyBlockers(ctx, taskID)
	if err != nil {
		t.Fatalf("IdentifyBlockers again: %v", err)
	}
	if len(again) != len(blockers) {
		t.Fatalf("second detection changed blocker count: %d -> %d", len(blockers), len(again))
	}

	for i := 1; i < len(blockers); i++ {
		if blockers[i-1].Severity.Rank() < blockers[i].Severity.Rank() {
			t.Fatal("blockers not sorted by severity")
		}
	}
}

func TestPendingCannotCompleteDirectly(t *testing.T) {
	engine, store, _, clock := newTestEngine(t)
	seedChain(t, store, clock)
	ctx := context.Background()

	// todo-a has no dependencies; the transition itself is the violation.
	_, _, err := engine.UpdateStatus(ctx, StatusUpdate{
		TodoID: "todo-a", To: domain.TodoCompleted, ChangedBy: "user-1",
	})
	if apperrors.CodeOf(err) != "invalid_transition" {
		t.Fatalf("error code = %s, want invalid_transition", apperrors.CodeOf(err))
	}

	todo, getErr := store.GetTodo(ctx, "todo-a")
	if getErr != nil {
		t.Fatalf("GetTodo: %v", getErr)
	}
	if todo.Status != domain.TodoPending {
		t.Fatalf("rejected transition mutated status to %s", todo.Status)
	}
}

func TestBlockerSeverityElevatesToCritical(t *testing.T) {
	engine, store, _, clock := newTestEngine(t)
	ctx := context.Background()
	if err := store.PutTask(ctx, &domain.WorkTask{ID: "task-3", Status: domain.TaskAnalyzed}); err != nil {
		t.Fatalf("PutTask: %v", err)
	}
	due := clock.Now().Add(-24 * time.Hour)
	todo := &domain.TodoItem{
		ID: "todo-hot", TaskID: "task-3", Title: "Hotfix rollout",
		Status: domain.TodoInProgress, Priority: domain.PriorityCritical,
		EstimatedHours: 4, DueDate: &due, CreatedAt: clock.Now(),
	}
	if err := store.PutTodo(ctx, todo); err != nil {
		t.Fatalf("PutTodo: %v", err)
	}

	blockers, err := engine.IdentifyBlockers(ctx, "task-3")
	if err != nil {
		t.Fatalf("IdentifyBlockers: %v", err)
	}
	var timeline *domain.Blocker
	for _, b := range blockers {
		if b.Kind == domain.BlockerTimeline {
			timeline = b
		}
	}
	if timeline == nil {
		t.Fatal("no timeline blocker for the overdue todo")
	}
	// Critical path and critical priority together take medium to critical.
	if timeline.Severity != domain.SeverityCritical {
		t.Fatalf("timeline severity = %s, want critical", timeline.Severity)
	}
}

func TestUnblockingResolvesBlocker(t *testing.T) {
	engine, store, bus, clock := newTestEngine(t)
	taskID, _ := seedChain(t, store, clock)
	ctx := context.Background()

	if _, _, err := engine.UpdateStatus(ctx, StatusUpdate{
		TodoID: "todo-a", To: domain.TodoBlocked, Reason: "waiting for security approval",
	}); err != nil {
		t.Fatalf("block todo-a: %v", err)
	}

	open, err := store.ListBlockers(ctx, taskID, true)
	if err != nil {
		t.Fatalf("ListBlockers: %v", err)
	}
	if len(open) != 1 || open[0].Kind != domain.BlockerApproval || !open[0].AutoDetected {
		t.Fatalf("blockers after entering blocked = %+v, want one auto-detected approval blocker", open)
	}

	events, cancel := bus.Subscribe(domain.EventFilter{
		TaskID: taskID, Kinds: []domain.EventKind{domain.EventBlockerResolved},
	}, 4)
	defer cancel()

	clock.Advance(time.Hour)
	if _, _, err := engine.UpdateStatus(ctx, StatusUpdate{
		TodoID: "todo-a", To: domain.TodoInProgress, Reason: "approval granted",
	}); err != nil {
		t.Fatalf("unblock todo-a: %v", err)
	}

	stillOpen, err := store.ListBlockers(ctx, taskID, true)
	if err != nil {
		t.Fatalf("ListBlockers: %v", err)
	}
	if len(stillOpen) != 0 {
		t.Fatalf("%d blockers still open after leaving blocked", len(stillOpen))
	}
	all, err := store.ListBlockers(ctx, taskID, false)
	if err != nil {
		t.Fatalf("ListBlockers: %v", err)
	}
	if len(all) != 1 || all[0].ResolvedAt == nil {
		t.Fatal("the blocker record must survive with resolved_at set")
	}
	if !all[0].ResolvedAt.Equal(clock.Now()) {
		t.Fatalf("resolved_at = %s, want %s", all[0].ResolvedAt, clock.Now())
	}

	select {
	case event := <-events:
		if event.Blocker == nil || event.Blocker.ID != all[0].ID {
			t.Fatalf("resolution event carries %+v, want blocker %s", event.Blocker, all[0].ID)
		}
	case <-time.After(time.Second):
		t.Fatal("no blocker_resolved event published")
	}
}

func TestProgressVelocityAndProjection(t *testing.T) {
	engine, store, _, clock := newTestEngine(t)
	taskID, _ := seedChain(t, store, clock)
	ctx := context.Background()

	if _, _, err := engine.UpdateStatus(ctx, StatusUpdate{TodoID: "todo-a", To: domain.TodoInProgress}); err != nil {
		t.Fatalf("start todo-a: %v", err)
	}
	if _, _, err := engine.UpdateStatus(ctx, StatusUpdate{TodoID: "todo-a", To: domain.TodoCompleted}); err != nil {
		t.Fatalf("complete todo-a: %v", err)
	}
	clock.Advance(24 * time.Hour)

	snapshot, err := engine.Progress().Snapshot(ctx, taskID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snapshot.Total != 3 || snapshot.Completed != 1 {
		t.Fatalf("snapshot = %+v, want total 3 completed 1", snapshot)
	}
	wantPct := 100.0 / 3.0
	if snapshot.CompletionPct < wantPct-0.01 || snapshot.CompletionPct > wantPct+0.01 {
		t.Fatalf("completion pct = %f, want ~%f", snapshot.CompletionPct, wantPct)
	}
	if snapshot.Velocity <= 0 {
		t.Fatalf("velocity = %f, want positive", snapshot.Velocity)
	}
	if snapshot.Projected.Realistic == nil {
		t.Fatal("no realistic projection despite positive velocity")
	}
	if snapshot.Projected.Pessimistic.Before(*snapshot.Projected.Realistic) {
		t.Fatal("pessimistic projection earlier than realistic")
	}
}

func TestProjectionAbsentAtZeroVelocity(t *testing.T) {
	engine, store, _, clock := newTestEngine(t)
	taskID, _ := seedChain(t, store, clock)

	snapshot, err := engine.Progress().Snapshot(context.Background(), taskID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snapshot.Velocity != 0 {
		t.Fatalf("velocity = %f, want 0", snapshot.Velocity)
	}
	if snapshot.Projected.Realistic != nil {
		t.Fatal("zero velocity must yield no projection")
	}
}

func TestBusDropsOldestWhenSubscriberLags(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	events, cancel := bus.Subscribe(domain.EventFilter{}, 2)
	defer cancel()

	for i := 0; i < 4; i++ {
		bus.Publish(domain.Event{Kind: domain.EventStatusChanged, TaskID: "t", At: time.Now()})
	}

	received := 0
	for {
		select {
		case <-events:
			received++
		default:
			if received != 2 {
				t.Fatalf("received %d events, want buffer size 2", received)
			}
			return
		}
	}
}

func TestCriticalPathFollowsLongestChain(t *testing.T) {
	todos := []*domain.TodoItem{
		{ID: "a", EstimatedHours: 2},
		{ID: "b", EstimatedHours: 10, Dependencies: []string{"a"}},
		{ID: "c", EstimatedHours: 1, Dependencies: []string{"a"}},
		{ID: "d", EstimatedHours: 3, Dependencies: []string{"b"}},
	}
	g := buildGraph(todos)
	path := g.criticalPath()

	want := []string{"a", "b", "d"}
	if len(path) != len(want) {
		t.Fatalf("path = %v, want %v", path, want)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("path = %v, want %v", path, want)
		}
	}
}
