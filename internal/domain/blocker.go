package domain

import "time"

// BlockerKind classifies what prevents progress on a todo.
type BlockerKind string

const (
	BlockerDependency BlockerKind = "dependency"
	BlockerResource   BlockerKind = "resource"
	BlockerApproval   BlockerKind = "approval"
	BlockerTechnical  BlockerKind = "technical"
	BlockerExternal   BlockerKind = "external"
	BlockerTimeline   BlockerKind = "timeline"
	BlockerQuality    BlockerKind = "quality"
)

// BlockerSeverity orders blockers for reporting.
type BlockerSeverity string

const (
	SeverityLow      BlockerSeverity = "low"
	SeverityMedium   BlockerSeverity = "medium"
	SeverityHigh     BlockerSeverity = "high"
	SeverityCritical BlockerSeverity = "critical"
)

// Rank returns a comparable weight, higher is more severe.
func (s BlockerSeverity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Blocker is a condition preventing progress on a todo, explicit or inferred.
type Blocker struct {
	ID           string          `json:"id"`
	TodoID       string          `json:"todo_id"`
	TaskID       string          `json:"task_id"`
	Kind         BlockerKind     `json:"kind"`
	Severity     BlockerSeverity `json:"severity"`
	Description  string          `json:"description"`
	DetectedAt   time.Time       `json:"detected_at"`
	AutoDetected bool            `json:"auto_detected"`
	ResolvedAt   *time.Time      `json:"resolved_at,omitempty"`
}

// Open reports whether the blocker is still unresolved.
func (b *Blocker) Open() bool {
	return b.ResolvedAt == nil
}
