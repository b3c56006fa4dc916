package domain

import "time"

// DeliverableStatus represents the quality-machine state of a deliverable.
type DeliverableStatus string

const (
	DeliverableSubmitted     DeliverableStatus = "submitted"
	DeliverableValidating    DeliverableStatus = "validating"
	DeliverableApproved      DeliverableStatus = "approved"
	DeliverableRejected      DeliverableStatus = "rejected"
	DeliverableNeedsRevision DeliverableStatus = "needs_revision"
)

// IsTerminal reports whether the deliverable has reached a final verdict.
// needs_revision is non-terminal: a new version re-enters the machine.
func (s DeliverableStatus) IsTerminal() bool {
	return s == DeliverableApproved || s == DeliverableRejected
}

// CheckOutcome is the result of a single validation check.
type CheckOutcome string

const (
	CheckPassed  CheckOutcome = "passed"
	CheckFailed  CheckOutcome = "failed"
	CheckWarning CheckOutcome = "warning"
)

// CheckKind classifies a validation check.
type CheckKind string

const (
	CheckFormat     CheckKind = "format"
	CheckContent    CheckKind = "content"
	CheckSecurity   CheckKind = "security"
	CheckCompliance CheckKind = "compliance"
	CheckTechnical  CheckKind = "technical"
)

// ValidationCheck is one rule-based check with its evidence.
type ValidationCheck struct {
	ID        string       `json:"id"`
	Kind      CheckKind    `json:"kind"`
	Name      string       `json:"name"`
	Outcome   CheckOutcome `json:"outcome"`
	Mandatory bool         `json:"mandatory"`
	Evidence  string       `json:"evidence,omitempty"`
}

// ValidationReport aggregates the rule-based validation stage.
type ValidationReport struct {
	Checks      []ValidationCheck `json:"checks"`
	ThreatFound bool              `json:"threat_found"`
	ThreatNote  string            `json:"threat_note,omitempty"`
	ScannedAt   time.Time         `json:"scanned_at"`
}

// QualityDimension is a scored quality axis with its weight.
type QualityDimension struct {
	Name   string  `json:"name"`
	Score  float64 `json:"score"`  // 0-100
	Weight float64 `json:"weight"` // weights sum to 1
}

// QualityAssessment is the weighted quality verdict for a deliverable.
type QualityAssessment struct {
	Dimensions  []QualityDimension `json:"dimensions"`
	Overall     float64            `json:"overall"`
	Suggestions []string           `json:"suggestions,omitempty"`
	GatesPassed bool               `json:"gates_passed"`
	AssessedAt  time.Time          `json:"assessed_at"`
}

// Deliverable is a user-submitted artifact attached to a todo. New versions
// are distinct deliverables linked via PreviousVersionID.
type Deliverable struct {
	ID                string            `json:"id"`
	TodoID            string            `json:"todo_id"`
	TaskID            string            `json:"task_id"`
	FileName          string            `json:"file_name"`
	FileType          string            `json:"file_type"`
	Size              int64             `json:"size"`
	StorageKey        string            `json:"storage_key"`
	Submitter         string            `json:"submitter"`
	SubmittedAt       time.Time         `json:"submitted_at"`
	VersionNumber     int               `json:"version_number"`
	PreviousVersionID string            `json:"previous_version_id,omitempty"`
	Checksum          string            `json:"checksum"`
	Status            DeliverableStatus `json:"status"`
	StatusReason      string            `json:"status_reason,omitempty"`

	Validation *ValidationReport  `json:"validation,omitempty"`
	Quality    *QualityAssessment `json:"quality,omitempty"`

	Version   int64     `json:"version"`
	TTL       *int64    `json:"ttl,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
