package todograph

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/weny2000/AIAgentSample-sub006/internal/domain"
	"github.com/weny2000/AIAgentSample-sub006/internal/ports"
)

const (
	// snapshotTTL bounds staleness of the cached progress rollup.
	snapshotTTL = 5 * time.Minute
	// velocityWindowDays is the lookback for completion velocity.
	velocityWindowDays = 14
)

// ProgressTracker computes cached progress snapshots and reports.
type ProgressTracker struct {
	store ports.TaskStore
	clock ports.Clock
	cache *gocache.Cache
}

// NewProgressTracker constructs a tracker with the default snapshot TTL.
func NewProgressTracker(store ports.TaskStore, clock ports.Clock) *ProgressTracker {
	if clock == nil {
		clock = ports.SystemClock()
	}
	return &ProgressTracker{
		store: store,
		clock: clock,
		cache: gocache.New(snapshotTTL, 2*snapshotTTL),
	}
}

// Invalidate drops the cached snapshot after a status change.
func (p *ProgressTracker) Invalidate(taskID string) {
	p.cache.Delete(taskID)
}

// Snapshot returns the task's progress rollup, serving the cached copy when
// fresh.
func (p *ProgressTracker) Snapshot(ctx context.Context, taskID string) (*domain.ProgressSnapshot, error) {
	if cached, ok := p.cache.Get(taskID); ok {
		return cached.(*domain.ProgressSnapshot), nil
	}
	snapshot, err := p.compute(ctx, taskID)
	if err != nil {
		return nil, err
	}
	p.cache.SetDefault(taskID, snapshot)
	return snapshot, nil
}

func (p *ProgressTracker) compute(ctx context.Context, taskID string) (*domain.ProgressSnapshot, error) {
	if _, err := p.store.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	todos, err := p.store.ListTodos(ctx, taskID)
	if err != nil {
		return nil, err
	}

	now := p.clock.Now()
	snapshot := &domain.ProgressSnapshot{TaskID: taskID, Total: len(todos), ComputedAt: now}
	remainingHours := 0.0
	for _, t := range todos {
		switch t.Status {
		case domain.TodoCompleted:
			snapshot.Completed++
		case domain.TodoInProgress:
			snapshot.InProgress++
			remainingHours += t.EstimatedHours
		case domain.TodoBlocked:
			snapshot.Blocked++
			remainingHours += t.EstimatedHours
		default:
			remainingHours += t.EstimatedHours
		}
	}
	if snapshot.Total > 0 {
		snapshot.CompletionPct = 100 * float64(snapshot.Completed) / float64(snapshot.Total)
	}

	snapshot.Velocity = velocity(todos, now)
	snapshot.Projected = project(snapshot, now)
	return snapshot, nil
}

// velocity is completed todos over the lookback window, per day.
func velocity(todos []*domain.TodoItem, now time.Time) float64 {
	windowStart := now.AddDate(0, 0, -velocityWindowDays)
	completed := 0
	for _, t := range todos {
		if at, ok := completedAt(t); ok && at.After(windowStart) {
			completed++
		}
	}
	return float64(completed) / velocityWindowDays
}

// project derives the three completion dates from the current velocity.
// Zero velocity with open work yields no projection.
func project(s *domain.ProgressSnapshot, now time.Time) domain.CompletionProjection {
	remaining := s.Total - s.Completed
	if remaining == 0 {
		return domain.CompletionProjection{Optimistic: &now, Realistic: &now, Pessimistic: &now}
	}
	if s.Velocity <= 0 {
		return domain.CompletionProjection{}
	}

	days := float64(remaining) / s.Velocity
	realistic := now.Add(time.Duration(days * 24 * float64(time.Hour)))
	optimistic := realistic.AddDate(0, 0, -3)
	pessimistic := realistic.AddDate(0, 0, 7)
	if optimistic.Before(now) {
		optimistic = now
	}
	return domain.CompletionProjection{
		Optimistic:  &optimistic,
		Realistic:   &realistic,
		Pessimistic: &pessimistic,
	}
}

// GenerateReport aggregates progress, completed items, blockers, quality, and
// the daily completion series over the requested range.
func (p *ProgressTracker) GenerateReport(ctx context.Context, taskID string, timeRange domain.TimeRange, cfg domain.ReportConfig) (*domain.ProgressReport, error) {
	snapshot, err := p.Snapshot(ctx, taskID)
	if err != nil {
		return nil, err
	}
	todos, err := p.store.ListTodos(ctx, taskID)
	if err != nil {
		return nil, err
	}

	report := &domain.ProgressReport{
		TaskID:      taskID,
		Range:       timeRange,
		Snapshot:    *snapshot,
		GeneratedAt: p.clock.Now(),
	}

	for _, t := range todos {
		if at, ok := completedAt(t); ok && timeRange.Contains(at) {
			report.CompletedItems = append(report.CompletedItems, *t)
		}
	}

	if cfg.IncludeBlockers {
		open, err := p.store.ListBlockers(ctx, taskID, true)
		if err != nil {
			return nil, err
		}
		for _, b := range open {
			report.OpenBlockers = append(report.OpenBlockers, *b)
		}
	}

	if cfg.IncludeQuality {
		quality, err := p.qualityMetrics(ctx, todos)
		if err != nil {
			return nil, err
		}
		report.Quality = quality
	}

	if cfg.IncludeVisualization {
		report.Visualization = dailySeries(todos, timeRange)
	}
	return report, nil
}

func (p *ProgressTracker) qualityMetrics(ctx context.Context, todos []*domain.TodoItem) (*domain.QualityMetrics, error) {
	metrics := &domain.QualityMetrics{}
	for _, t := range todos {
		deliverables, err := p.store.ListDeliverables(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		for _, d := range deliverables {
			metrics.DeliverablesTotal++
			switch d.Status {
			case domain.DeliverableApproved:
				metrics.DeliverablesApproved++
			case domain.DeliverableRejected:
				metrics.DeliverablesRejected++
			}
		}
	}
	if judged := metrics.DeliverablesApproved + metrics.DeliverablesRejected; judged > 0 {
		metrics.PassRate = float64(metrics.DeliverablesApproved) / float64(judged)
	}
	return metrics, nil
}

// dailySeries buckets completions by calendar day over the range.
func dailySeries(todos []*domain.TodoItem, timeRange domain.TimeRange) []domain.DailyCompletion {
	byDay := make(map[time.Time]int)
	for _, t := range todos {
		if at, ok := completedAt(t); ok && timeRange.Contains(at) {
			day := at.Truncate(24 * time.Hour)
			byDay[day]++
		}
	}
	if len(byDay) == 0 {
		return nil
	}

	first, last := time.Time{}, time.Time{}
	for day := range byDay {
		if first.IsZero() || day.Before(first) {
			first = day
		}
		if last.IsZero() || day.After(last) {
			last = day
		}
	}

	var series []domain.DailyCompletion
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		series = append(series, domain.DailyCompletion{Date: day, Completed: byDay[day]})
	}
	return series
}

// completedAt finds when the todo reached completed, from its history.
func completedAt(t *domain.TodoItem) (time.Time, bool) {
	if t.Status != domain.TodoCompleted {
		return time.Time{}, false
	}
	for i := len(t.StatusHistory) - 1; i >= 0; i-- {
		if t.StatusHistory[i].To == domain.TodoCompleted {
			return t.StatusHistory[i].At, true
		}
	}
	return t.UpdatedAt, true
}
