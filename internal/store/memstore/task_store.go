// Package memstore provides in-memory reference implementations of the store
// ports. They honor the same conditional-write discipline (version CAS) a
// durable backend would, so engine behavior is identical under test wiring.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/weny2000/AIAgentSample-sub006/internal/apperrors"
	"github.com/weny2000/AIAgentSample-sub006/internal/domain"
	"github.com/weny2000/AIAgentSample-sub006/internal/ports"
)

// TaskStore is an in-memory ports.TaskStore.
type TaskStore struct {
	mu           sync.RWMutex
	tasks        map[string]*domain.WorkTask
	todos        map[string]*domain.TodoItem
	deliverables map[string]*domain.Deliverable
	blockers     map[string]*domain.Blocker
	analyses     map[string]map[int]*domain.TaskAnalysisResult // taskID -> version
}

var _ ports.TaskStore = (*TaskStore)(nil)

// NewTaskStore constructs an empty in-memory task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks:        make(map[string]*domain.WorkTask),
		todos:        make(map[string]*domain.TodoItem),
		deliverables: make(map[string]*domain.Deliverable),
		blockers:     make(map[string]*domain.Blocker),
		analyses:     make(map[string]map[int]*domain.TaskAnalysisResult),
	}
}

func (s *TaskStore) PutTask(_ context.Context, task *domain.WorkTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return apperrors.Conflict("task_exists", "task %s already exists", task.ID)
	}
	task.Version = 1
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

func (s *TaskStore) GetTask(_ context.Context, taskID string) (*domain.WorkTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, apperrors.NotFound("task", taskID)
	}
	return cloneTask(task), nil
}

func (s *TaskStore) UpdateTask(_ context.Context, task *domain.WorkTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tasks[task.ID]
	if !ok {
		return apperrors.NotFound("task", task.ID)
	}
	if current.Version != task.Version {
		return apperrors.Conflict("task_version_mismatch",
			"task %s version %d does not match stored %d", task.ID, task.Version, current.Version)
	}
	task.Version++
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

func (s *TaskStore) QueryTasks(_ context.Context, filter domain.TaskFilter) ([]*domain.WorkTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []*domain.WorkTask
	for _, task := range s.tasks {
		if filter.TeamID != "" && task.TeamID != filter.TeamID {
			continue
		}
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		if filter.Submitter != "" && task.Submitter != filter.Submitter {
			continue
		}
		results = append(results, cloneTask(task))
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(results) {
			return nil, nil
		}
		results = results[filter.Offset:]
	}
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

func (s *TaskStore) PutTodo(_ context.Context, todo *domain.TodoItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.todos[todo.ID]; exists {
		return apperrors.Conflict("todo_exists", "todo %s already exists", todo.ID)
	}
	todo.Version = 1
	s.todos[todo.ID] = cloneTodo(todo)
	return nil
}

func (s *TaskStore) GetTodo(_ context.Context, todoID string) (*domain.TodoItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	todo, ok := s.todos[todoID]
	if !ok {
		return nil, apperrors.NotFound("todo", todoID)
	}
	return cloneTodo(todo), nil
}

func (s *TaskStore) UpdateTodo(_ context.Context, todo *domain.TodoItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.todos[todo.ID]
	if !ok {
		return apperrors.NotFound("todo", todo.ID)
	}
	if current.Version != todo.Version {
		return apperrors.Conflict("todo_version_mismatch",
			"todo %s version %d does not match stored %d", todo.ID, todo.Version, current.Version)
	}
	todo.Version++
	s.todos[todo.ID] = cloneTodo(todo)
	return nil
}

func (s *TaskStore) DeleteTodo(_ context.Context, todoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.todos, todoID)
	return nil
}

func (s *TaskStore) ListTodos(_ context.Context, taskID string) ([]*domain.TodoItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []*domain.TodoItem
	for _, todo := range s.todos {
		if todo.TaskID == taskID {
			results = append(results, cloneTodo(todo))
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].ID < results[j].ID
		}
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return results, nil
}

func (s *TaskStore) ListTodosByAssignee(_ context.Context, assignee string) ([]*domain.TodoItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []*domain.TodoItem
	for _, todo := range s.todos {
		if todo.Assignee == assignee {
			results = append(results, cloneTodo(todo))
		}
	}
	sort.Slice(results, func(i, j int) bool {
		di, dj := results[i].DueDate, results[j].DueDate
		switch {
		case di == nil && dj == nil:
			return results[i].ID < results[j].ID
		case di == nil:
			return false
		case dj == nil:
			return true
		default:
			return di.Before(*dj)
		}
	})
	return results, nil
}

func (s *TaskStore) PutDeliverable(_ context.Context, d *domain.Deliverable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.deliverables[d.ID]; exists {
		return apperrors.Conflict("deliverable_exists", "deliverable %s already exists", d.ID)
	}
	d.Version = 1
	s.deliverables[d.ID] = cloneDeliverable(d)
	return nil
}

func (s *TaskStore) GetDeliverable(_ context.Context, id string) (*domain.Deliverable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deliverables[id]
	if !ok {
		return nil, apperrors.NotFound("deliverable", id)
	}
	return cloneDeliverable(d), nil
}

func (s *TaskStore) UpdateDeliverable(_ context.Context, d *domain.Deliverable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.deliverables[d.ID]
	if !ok {
		return apperrors.NotFound("deliverable", d.ID)
	}
	if current.Version != d.Version {
		return apperrors.Conflict("deliverable_version_mismatch",
			"deliverable %s version %d does not match stored %d", d.ID, d.Version, current.Version)
	}
	d.Version++
	s.deliverables[d.ID] = cloneDeliverable(d)
	return nil
}

func (s *TaskStore) ListDeliverables(_ context.Context, todoID string) ([]*domain.Deliverable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []*domain.Deliverable
	for _, d := range s.deliverables {
		if d.TodoID == todoID {
			results = append(results, cloneDeliverable(d))
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].SubmittedAt.Before(results[j].SubmittedAt)
	})
	return results, nil
}

func (s *TaskStore) PutBlocker(_ context.Context, b *domain.Blocker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *b
	s.blockers[b.ID] = &clone
	return nil
}

func (s *TaskStore) UpdateBlocker(_ context.Context, b *domain.Blocker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blockers[b.ID]; !ok {
		return apperrors.NotFound("blocker", b.ID)
	}
	clone := *b
	s.blockers[b.ID] = &clone
	return nil
}

func (s *TaskStore) ListBlockers(_ context.Context, taskID string, openOnly bool) ([]*domain.Blocker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []*domain.Blocker
	for _, b := range s.blockers {
		if b.TaskID != taskID {
			continue
		}
		if openOnly && !b.Open() {
			continue
		}
		clone := *b
		results = append(results, &clone)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Severity.Rank() == results[j].Severity.Rank() {
			return results[i].DetectedAt.Before(results[j].DetectedAt)
		}
		return results[i].Severity.Rank() > results[j].Severity.Rank()
	})
	return results, nil
}

func (s *TaskStore) PutAnalysis(_ context.Context, result *domain.TaskAnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions, ok := s.analyses[result.TaskID]
	if !ok {
		versions = make(map[int]*domain.TaskAnalysisResult)
		s.analyses[result.TaskID] = versions
	}
	clone := *result
	versions[result.AnalysisVersion] = &clone
	return nil
}

func (s *TaskStore) GetAnalysis(_ context.Context, taskID string, version int) (*domain.TaskAnalysisResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions, ok := s.analyses[taskID]
	if !ok {
		return nil, apperrors.NotFound("analysis", taskID)
	}
	result, ok := versions[version]
	if !ok {
		return nil, apperrors.NotFound("analysis", taskID)
	}
	clone := *result
	return &clone, nil
}

func (s *TaskStore) LatestAnalysis(_ context.Context, taskID string) (*domain.TaskAnalysisResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions, ok := s.analyses[taskID]
	if !ok || len(versions) == 0 {
		return nil, apperrors.NotFound("analysis", taskID)
	}
	latest := -1
	for v := range versions {
		if v > latest {
			latest = v
		}
	}
	clone := *versions[latest]
	return &clone, nil
}

func (s *TaskStore) ExpireTTL(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	epoch := now.Unix()
	expired := 0
	for id, task := range s.tasks {
		if task.TTL != nil && *task.TTL <= epoch {
			delete(s.tasks, id)
			expired++
		}
	}
	for id, todo := range s.todos {
		if todo.TTL != nil && *todo.TTL <= epoch {
			delete(s.todos, id)
			expired++
		}
	}
	for id, d := range s.deliverables {
		if d.TTL != nil && *d.TTL <= epoch {
			delete(s.deliverables, id)
			expired++
		}
	}
	return expired, nil
}

func cloneTask(t *domain.WorkTask) *domain.WorkTask {
	clone := *t
	clone.Tags = append([]string(nil), t.Tags...)
	return &clone
}

func cloneTodo(t *domain.TodoItem) *domain.TodoItem {
	clone := *t
	clone.Dependencies = append([]string(nil), t.Dependencies...)
	clone.RelatedWorkgroups = append([]string(nil), t.RelatedWorkgroups...)
	clone.DeliverableIDs = append([]string(nil), t.DeliverableIDs...)
	clone.QualityCheckIDs = append([]string(nil), t.QualityCheckIDs...)
	clone.CompletionCriteria = append([]domain.CompletionCriterion(nil), t.CompletionCriteria...)
	clone.StatusHistory = append([]domain.StatusHistoryEntry(nil), t.StatusHistory...)
	return &clone
}

func cloneDeliverable(d *domain.Deliverable) *domain.Deliverable {
	clone := *d
	if d.Validation != nil {
		v := *d.Validation
		v.Checks = append([]domain.ValidationCheck(nil), d.Validation.Checks...)
		clone.Validation = &v
	}
	if d.Quality != nil {
		q := *d.Quality
		q.Dimensions = append([]domain.QualityDimension(nil), d.Quality.Dimensions...)
		q.Suggestions = append([]string(nil), d.Quality.Suggestions...)
		clone.Quality = &q
	}
	return &clone
}
