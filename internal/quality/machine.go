package quality

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/weny2000/AIAgentSample-sub006/internal/apperrors"
	"github.com/weny2000/AIAgentSample-sub006/internal/domain"
	"github.com/weny2000/AIAgentSample-sub006/internal/logging"
	"github.com/weny2000/AIAgentSample-sub006/internal/ports"
	"github.com/weny2000/AIAgentSample-sub006/internal/sensitivity"
	"github.com/weny2000/AIAgentSample-sub006/internal/todograph"
)

// DefaultProcessTimeout bounds one validation run; exceeding it yields a
// needs_revision verdict instead of an error.
const DefaultProcessTimeout = 120 * time.Second

// DefaultBucket is where deliverable payloads land.
const DefaultBucket = "deliverables"

// Submission is one deliverable upload.
type Submission struct {
	TodoID    string
	TaskID    string
	FileName  string
	FileType  string
	Submitter string
	Content   []byte
	// PreviousVersionID marks a revision of an earlier deliverable.
	PreviousVersionID string
}

// Machine is the deliverable quality state machine.
type Machine struct {
	store   ports.TaskStore
	objects ports.ObjectStore
	rules   ports.RulesEngine
	gate    *sensitivity.Gate
	bus     *todograph.Bus
	clock   ports.Clock
	logger  logging.Logger
	policy  *Policy
	timeout time.Duration
	bucket  string
}

// NewMachine wires the quality machine. rules, gate, and bus may be nil.
func NewMachine(store ports.TaskStore, objects ports.ObjectStore, rules ports.RulesEngine, gate *sensitivity.Gate, bus *todograph.Bus, clock ports.Clock, policy *Policy) *Machine {
	if clock == nil {
		clock = ports.SystemClock()
	}
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Machine{
		store:   store,
		objects: objects,
		rules:   rules,
		gate:    gate,
		bus:     bus,
		clock:   clock,
		logger:  logging.NewComponentLogger("quality-machine"),
		policy:  policy,
		timeout: DefaultProcessTimeout,
		bucket:  DefaultBucket,
	}
}

// Submit stores the payload and creates the deliverable record in submitted
// state. At most one non-terminal version may exist per (todo, file name); a
// revision of a needs_revision deliverable supersedes it.
func (m *Machine) Submit(ctx context.Context, sub Submission) (*domain.Deliverable, error) {
	if sub.TodoID == "" || sub.FileName == "" {
		return nil, apperrors.Validation("deliverable_invalid", "todo id and file name are required")
	}
	todo, err := m.store.GetTodo(ctx, sub.TodoID)
	if err != nil {
		return nil, err
	}
	if sub.TaskID == "" {
		sub.TaskID = todo.TaskID
	}

	versionNumber, previousID, err := m.resolveVersion(ctx, sub)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	checksum := sha256.Sum256(sub.Content)
	d := &domain.Deliverable{
		ID:                uuid.NewString(),
		TodoID:            sub.TodoID,
		TaskID:            sub.TaskID,
		FileName:          sub.FileName,
		FileType:          sub.FileType,
		Size:              int64(len(sub.Content)),
		Submitter:         sub.Submitter,
		SubmittedAt:       now,
		VersionNumber:     versionNumber,
		PreviousVersionID: previousID,
		Checksum:          hex.EncodeToString(checksum[:]),
		Status:            domain.DeliverableSubmitted,
		UpdatedAt:         now,
	}
	d.StorageKey = fmt.Sprintf("%s/%s/v%d/%s", sub.TaskID, sub.TodoID, versionNumber, sub.FileName)

	err = m.objects.Put(ctx, m.bucket, d.StorageKey, bytes.NewReader(sub.Content), ports.ObjectMeta{
		Bucket:      m.bucket,
		Key:         d.StorageKey,
		Size:        d.Size,
		ContentType: sub.FileType,
		Encrypted:   true,
	})
	if err != nil {
		return nil, err
	}
	if err := m.store.PutDeliverable(ctx, d); err != nil {
		return nil, err
	}
	m.logger.Info("deliverable %s submitted for todo %s (version %d)", d.ID, sub.TodoID, versionNumber)
	return d, nil
}

// resolveVersion enforces the one-non-terminal-version rule and computes the
// next version number. A needs_revision predecessor is closed as rejected
// with a superseded reason.
func (m *Machine) resolveVersion(ctx context.Context, sub Submission) (int, string, error) {
	existing, err := m.store.ListDeliverables(ctx, sub.TodoID)
	if err != nil {
		return 0, "", err
	}

	version := 1
	previousID := sub.PreviousVersionID
	for _, d := range existing {
		if d.FileName != sub.FileName {
			continue
		}
		if d.VersionNumber >= version {
			version = d.VersionNumber + 1
		}
		switch d.Status {
		case domain.DeliverableSubmitted, domain.DeliverableValidating:
			return 0, "", apperrors.Conflict("deliverable_in_flight",
				"deliverable %s for %s is still being processed", d.FileName, sub.TodoID)
		case domain.DeliverableNeedsRevision:
			if previousID == "" {
				previousID = d.ID
			}
			d.Status = domain.DeliverableRejected
			d.StatusReason = "superseded by a new version"
			d.UpdatedAt = m.clock.Now()
			if err := m.store.UpdateDeliverable(ctx, d); err != nil {
				return 0, "", err
			}
		}
	}
	return version, previousID, nil
}

// Process runs the deliverable through validation and assessment and records
// the verdict. Exceeding the processing timeout parks the deliverable as
// needs_revision so the submitter is never stuck in validating.
func (m *Machine) Process(ctx context.Context, deliverableID string) (*domain.Deliverable, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	d, err := m.store.GetDeliverable(ctx, deliverableID)
	if err != nil {
		return nil, err
	}
	if d.Status != domain.DeliverableSubmitted {
		return nil, apperrors.InvalidState("deliverable_"+string(d.Status),
			"deliverable %s is %s, not submitted", d.ID, d.Status)
	}

	d.Status = domain.DeliverableValidating
	d.UpdatedAt = m.clock.Now()
	if err := m.store.UpdateDeliverable(ctx, d); err != nil {
		return nil, err
	}

	content, err := m.payload(ctx, d)
	if err != nil {
		return m.conclude(ctx, d, domain.DeliverableNeedsRevision, "payload unavailable: "+err.Error())
	}

	verdictStatus, reason := m.validate(ctx, d, content)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		verdictStatus, reason = domain.DeliverableNeedsRevision, "processing_timeout"
	}
	return m.conclude(context.WithoutCancel(ctx), d, verdictStatus, reason)
}

func (m *Machine) validate(ctx context.Context, d *domain.Deliverable, content []byte) (domain.DeliverableStatus, string) {
	checks := m.quickChecks(d)

	securityChecks, threat, threatNote := m.securityChecks(ctx, d, content)
	checks = append(checks, securityChecks...)
	checks = append(checks, m.ruleChecks(ctx, d, content)...)

	d.Validation = &domain.ValidationReport{
		Checks:      checks,
		ThreatFound: threat,
		ThreatNote:  threatNote,
		ScannedAt:   m.clock.Now(),
	}
	if threat {
		return domain.DeliverableRejected, threatNote
	}
	if !mandatoryPassed(checks) {
		return domain.DeliverableRejected, "mandatory validation checks failed"
	}

	d.Quality = m.assessQuality(ctx, d, content, checks)
	if d.Quality.Overall < m.policy.threshold() {
		return domain.DeliverableNeedsRevision,
			fmt.Sprintf("quality score %.0f below threshold %.0f", d.Quality.Overall, m.policy.threshold())
	}
	if nonMandatoryFailed(checks) {
		return domain.DeliverableNeedsRevision, "non-mandatory checks failed"
	}
	return domain.DeliverableApproved, ""
}

func (m *Machine) conclude(ctx context.Context, d *domain.Deliverable, status domain.DeliverableStatus, reason string) (*domain.Deliverable, error) {
	d.Status = status
	d.StatusReason = reason
	d.UpdatedAt = m.clock.Now()
	if err := m.store.UpdateDeliverable(ctx, d); err != nil {
		return nil, err
	}

	if status == domain.DeliverableApproved {
		if err := m.markCriteria(ctx, d); err != nil {
			m.logger.Warn("failed to mark completion criteria for todo %s: %v", d.TodoID, err)
		}
	}

	if m.bus != nil {
		m.bus.Publish(domain.Event{
			Kind:        domain.EventDeliverableVerdict,
			TaskID:      d.TaskID,
			TodoID:      d.TodoID,
			At:          d.UpdatedAt,
			Deliverable: d,
		})
	}
	m.logger.Info("deliverable %s: %s (%s)", d.ID, status, reason)
	return d, nil
}

// markCriteria satisfies the first unmet criterion awaiting a deliverable.
// The todo's status is untouched; completion stays an explicit transition.
func (m *Machine) markCriteria(ctx context.Context, d *domain.Deliverable) error {
	todo, err := m.store.GetTodo(ctx, d.TodoID)
	if err != nil {
		return err
	}
	changed := false
	for i := range todo.CompletionCriteria {
		criterion := &todo.CompletionCriteria[i]
		if criterion.Met {
			continue
		}
		if criterion.DeliverableID == "" || criterion.DeliverableID == d.ID {
			criterion.Met = true
			criterion.DeliverableID = d.ID
			changed = true
			break
		}
	}
	if !changed {
		return nil
	}
	todo.DeliverableIDs = append(todo.DeliverableIDs, d.ID)
	todo.UpdatedAt = m.clock.Now()
	return m.store.UpdateTodo(ctx, todo)
}

func (m *Machine) payload(ctx context.Context, d *domain.Deliverable) ([]byte, error) {
	body, _, err := m.objects.Get(ctx, m.bucket, d.StorageKey)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

func nonMandatoryFailed(checks []domain.ValidationCheck) bool {
	for _, c := range checks {
		if !c.Mandatory && c.Outcome == domain.CheckFailed {
			return true
		}
	}
	return false
}
