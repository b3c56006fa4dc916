package memstore

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/weny2000/AIAgentSample-sub006/internal/apperrors"
	"github.com/weny2000/AIAgentSample-sub006/internal/backends"
	"github.com/weny2000/AIAgentSample-sub006/internal/domain"
	"github.com/weny2000/AIAgentSample-sub006/internal/ports"
)

func TestTaskVersioningDetectsLostUpdates(t *testing.T) {
	store := NewTaskStore()
	ctx := context.Background()

	task := &domain.WorkTask{ID: "task-1", Title: "First", Status: domain.TaskSubmitted}
	if err := store.PutTask(ctx, task); err != nil {
		t.Fatalf("PutTask: %v", err)
	}
	if task.Version != 1 {
		t.Fatalf("version after put = %d, want 1", task.Version)
	}
	if err := store.PutTask(ctx, &domain.WorkTask{ID: "task-1"}); !apperrors.IsConflict(err) {
		t.Fatalf("duplicate put error = %v, want a conflict", err)
	}

	a, _ := store.GetTask(ctx, "task-1")
	b, _ := store.GetTask(ctx, "task-1")

	a.Title = "Writer A"
	if err := store.UpdateTask(ctx, a); err != nil {
		t.Fatalf("first update: %v", err)
	}
	b.Title = "Writer B"
	err := store.UpdateTask(ctx, b)
	if !apperrors.IsConflict(err) {
		t.Fatalf("stale update error = %v, want a conflict", err)
	}
	if apperrors.CodeOf(err) != "task_version_mismatch" {
		t.Fatalf("conflict code = %s, want task_version_mismatch", apperrors.CodeOf(err))
	}

	stored, _ := store.GetTask(ctx, "task-1")
	if stored.Title != "Writer A" {
		t.Fatalf("stored title = %q, the stale writer must not win", stored.Title)
	}
}

func TestStoreReturnsDefensiveClones(t *testing.T) {
	store := NewTaskStore()
	ctx := context.Background()
	todo := &domain.TodoItem{ID: "todo-1", TaskID: "task-1", Dependencies: []string{"todo-0"}}
	if err := store.PutTodo(ctx, todo); err != nil {
		t.Fatalf("PutTodo: %v", err)
	}

	read, _ := store.GetTodo(ctx, "todo-1")
	read.Dependencies[0] = "mutated"
	read.Title = "mutated"

	again, _ := store.GetTodo(ctx, "todo-1")
	if again.Dependencies[0] != "todo-0" || again.Title == "mutated" {
		t.Fatal("caller mutation leaked into the store")
	}
}

func TestQueryTasksFiltersAndPages(t *testing.T) {
	store := NewTaskStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, team := range []string{"team-a", "team-a", "team-b"} {
		task := &domain.WorkTask{
			ID:        "task-" + strings.Repeat("x", i+1),
			TeamID:    team,
			Status:    domain.TaskSubmitted,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := store.PutTask(ctx, task); err != nil {
			t.Fatalf("PutTask: %v", err)
		}
	}

	teamA, err := store.QueryTasks(ctx, domain.TaskFilter{TeamID: "team-a"})
	if err != nil {
		t.Fatalf("QueryTasks: %v", err)
	}
	if len(teamA) != 2 {
		t.Fatalf("team-a tasks = %d, want 2", len(teamA))
	}
	if teamA[0].CreatedAt.Before(teamA[1].CreatedAt) {
		t.Fatal("results must be newest first")
	}

	page, err := store.QueryTasks(ctx, domain.TaskFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("QueryTasks: %v", err)
	}
	if len(page) != 1 {
		t.Fatalf("paged result = %d, want 1", len(page))
	}
}

func TestAnalysisVersionsCoexist(t *testing.T) {
	store := NewTaskStore()
	ctx := context.Background()
	for v := 1; v <= 2; v++ {
		err := store.PutAnalysis(ctx, &domain.TaskAnalysisResult{TaskID: "task-1", AnalysisVersion: v})
		if err != nil {
			t.Fatalf("PutAnalysis v%d: %v", v, err)
		}
	}

	v1, err := store.GetAnalysis(ctx, "task-1", 1)
	if err != nil || v1.AnalysisVersion != 1 {
		t.Fatalf("GetAnalysis(1) = %v, %v", v1, err)
	}
	latest, err := store.LatestAnalysis(ctx, "task-1")
	if err != nil || latest.AnalysisVersion != 2 {
		t.Fatalf("LatestAnalysis = %v, %v", latest, err)
	}
}

func TestExpireTTLRemovesDueRecords(t *testing.T) {
	store := NewTaskStore()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	due := now.Add(-time.Hour).Unix()
	future := now.Add(time.Hour).Unix()
	if err := store.PutTask(ctx, &domain.WorkTask{ID: "stale", TTL: &due}); err != nil {
		t.Fatalf("PutTask: %v", err)
	}
	if err := store.PutTask(ctx, &domain.WorkTask{ID: "live", TTL: &future}); err != nil {
		t.Fatalf("PutTask: %v", err)
	}

	expired, err := store.ExpireTTL(ctx, now)
	if err != nil {
		t.Fatalf("ExpireTTL: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expired = %d, want 1", expired)
	}
	if _, err := store.GetTask(ctx, "stale"); apperrors.KindOf(err) != apperrors.KindNotFound {
		t.Fatalf("stale task error = %v, want not found", err)
	}
	if _, err := store.GetTask(ctx, "live"); err != nil {
		t.Fatalf("live task must survive: %v", err)
	}
}

func TestSessionStoreOrdersTimelines(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()
	session := &domain.Session{ID: "s1", UserID: "u1", Status: domain.SessionActive}
	if err := store.PutSession(ctx, session); err != nil {
		t.Fatalf("PutSession: %v", err)
	}

	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	// Same timestamp: Seq breaks the tie. Appended out of order on purpose.
	for _, m := range []*domain.Message{
		{ID: "m2", SessionID: "s1", Seq: 2, Timestamp: base, Role: domain.RoleAgent},
		{ID: "m3", SessionID: "s1", Seq: 3, Timestamp: base.Add(time.Second), Role: domain.RoleUser},
		{ID: "m1", SessionID: "s1", Seq: 1, Timestamp: base, Role: domain.RoleUser},
	} {
		if err := store.AppendMessage(ctx, m); err != nil {
			t.Fatalf("AppendMessage(%s): %v", m.ID, err)
		}
	}

	messages, err := store.RangeMessages(ctx, "s1", "")
	if err != nil {
		t.Fatalf("RangeMessages: %v", err)
	}
	want := []string{"m1", "m2", "m3"}
	for i, id := range want {
		if messages[i].ID != id {
			t.Fatalf("position %d = %s, want %s", i, messages[i].ID, id)
		}
	}
}

func TestEncryptedObjectStoreRoundTrip(t *testing.T) {
	store := NewEncryptedObjectStore(backends.NewLocalKMS([]byte("test-secret")), "deliverables")
	ctx := context.Background()

	if err := store.Put(ctx, "deliverables", "k1", strings.NewReader("secret payload"), ports.ObjectMeta{Encrypted: true}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	body, meta, err := store.Get(ctx, "deliverables", "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(data) != "secret payload" {
		t.Fatalf("round trip = %q, want the plaintext back", data)
	}
	if meta.Size != int64(len("secret payload")) {
		t.Fatalf("meta size = %d, want plaintext length", meta.Size)
	}
}

func TestObjectStoreRequiresEncryption(t *testing.T) {
	store := NewObjectStore()
	ctx := context.Background()

	err := store.Put(ctx, "deliverables", "k1", strings.NewReader("payload"), ports.ObjectMeta{Encrypted: false})
	if err == nil || apperrors.CodeOf(err) != "encryption_required" {
		t.Fatalf("unencrypted put error = %v, want encryption_required", err)
	}

	if err := store.Put(ctx, "deliverables", "k1", strings.NewReader("payload"), ports.ObjectMeta{Encrypted: true}); err != nil {
		t.Fatalf("encrypted put: %v", err)
	}
	meta, err := store.Head(ctx, "deliverables", "k1")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if meta.Size != int64(len("payload")) {
		t.Fatalf("meta size = %d, want %d", meta.Size, len("payload"))
	}
}
