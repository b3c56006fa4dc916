package domain

import "time"

// KeyPoint is one extracted focus of a task's content.
type KeyPoint struct {
	Text       string  `json:"text"`
	Importance float64 `json:"importance"` // 0-1
	Category   string  `json:"category,omitempty"`
}

// KnowledgeReference is an external knowledge handle ranked by relevance.
type KnowledgeReference struct {
	SourceID   string  `json:"source_id"`
	SourceType string  `json:"source_type"`
	Title      string  `json:"title"`
	Snippet    string  `json:"snippet,omitempty"`
	Relevance  float64 `json:"relevance"` // 0-1
}

// Involvement describes how a workgroup should participate in a task.
type Involvement string

const (
	InvolvementConsultation  Involvement = "consultation"
	InvolvementCollaboration Involvement = "collaboration"
	InvolvementApproval      Involvement = "approval"
	InvolvementNotification  Involvement = "notification"
)

// SkillMatch details how a workgroup's skills overlap the task.
type SkillMatch struct {
	MatchedSkills []string `json:"matched_skills"`
	MissingSkills []string `json:"missing_skills,omitempty"`
	Score         float64  `json:"score"` // 0-1
}

// CapacityInfo reflects a workgroup's current load.
type CapacityInfo struct {
	ActiveTasks int     `json:"active_tasks"`
	Limit       int     `json:"limit"`
	Utilization float64 `json:"utilization"` // 0-1
}

// RelatedWorkgroup is a ranked workgroup recommendation.
type RelatedWorkgroup struct {
	TeamID                 string       `json:"team_id"`
	TeamName               string       `json:"team_name"`
	Relevance              float64      `json:"relevance"` // 0-1
	SkillMatch             SkillMatch   `json:"skill_match"`
	Capacity               CapacityInfo `json:"capacity"`
	HistoricalSuccess      float64      `json:"historical_success"` // 0-1
	RecentSimilarity       float64      `json:"recent_similarity"`  // 0-1
	RecommendedInvolvement Involvement  `json:"recommended_involvement"`
}

// RiskFactor names one axis of the risk matrix.
type RiskFactor string

const (
	RiskTechnical  RiskFactor = "technical"
	RiskResource   RiskFactor = "resource"
	RiskTimeline   RiskFactor = "timeline"
	RiskCompliance RiskFactor = "compliance"
	RiskSecurity   RiskFactor = "security"
	RiskBusiness   RiskFactor = "business"
)

// RiskEntry holds probability and impact for one factor, both 0-1.
type RiskEntry struct {
	Factor      RiskFactor `json:"factor"`
	Probability float64    `json:"probability"`
	Impact      float64    `json:"impact"`
	Note        string     `json:"note,omitempty"`
}

// Exposure is probability times impact.
func (e RiskEntry) Exposure() float64 {
	return e.Probability * e.Impact
}

// RiskLevel buckets an exposure value.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// LevelForExposure maps a 0-1 exposure to a risk level.
func LevelForExposure(exposure float64) RiskLevel {
	switch {
	case exposure >= 0.6:
		return RiskCritical
	case exposure >= 0.35:
		return RiskHigh
	case exposure >= 0.15:
		return RiskMedium
	default:
		return RiskLow
	}
}

// RiskAssessment is the per-factor matrix with the overall worst case.
type RiskAssessment struct {
	Entries []RiskEntry `json:"entries"`
	Overall RiskLevel   `json:"overall"`
}

// TaskAnalysisResult is the immutable outcome of one analysis run. A new
// version is appended on re-analysis; prior versions are never mutated.
type TaskAnalysisResult struct {
	TaskID         string               `json:"task_id"`
	AnalysisVersion int                 `json:"analysis_version"`
	KeyPoints      []KeyPoint           `json:"key_points"`
	Workgroups     []RelatedWorkgroup   `json:"workgroups"`
	TodoIDs        []string             `json:"todo_ids"`
	KnowledgeRefs  []KnowledgeReference `json:"knowledge_refs"`
	Risk           RiskAssessment       `json:"risk"`
	EffortHours    float64              `json:"effort_hours"`
	Degraded       bool                 `json:"degraded,omitempty"`
	GeneratedAt    time.Time            `json:"generated_at"`
}
