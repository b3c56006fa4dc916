package analysis

import (
	"strings"

	"github.com/weny2000/AIAgentSample-sub006/internal/domain"
)

// assessRisk builds the probability/impact matrix from what the run already
// knows: sensitivity score, graph shape, workgroup load, and content signals.
// Deterministic for a fixed input.
func assessRisk(task *domain.WorkTask, todos []*domain.TodoItem, workgroups []domain.RelatedWorkgroup, sensitivityScore int) domain.RiskAssessment {
	lower := strings.ToLower(task.Title + " " + task.Description + " " + task.Content)
	entries := []domain.RiskEntry{
		technicalRisk(todos),
		resourceRisk(workgroups),
		timelineRisk(task, todos),
		securityRisk(lower, sensitivityScore),
		complianceRisk(lower),
		businessRisk(task),
	}

	overall := domain.RiskLow
	worst := 0.0
	for _, entry := range entries {
		if exposure := entry.Exposure(); exposure > worst {
			worst = exposure
			overall = domain.LevelForExposure(exposure)
		}
	}
	return domain.RiskAssessment{Entries: entries, Overall: overall}
}

func technicalRisk(todos []*domain.TodoItem) domain.RiskEntry {
	edges := 0
	for _, t := range todos {
		edges += len(t.Dependencies)
	}
	probability := clampUnit(0.1 + 0.05*float64(edges))
	impact := clampUnit(0.2 + 0.05*float64(len(todos)))
	return domain.RiskEntry{
		Factor:      domain.RiskTechnical,
		Probability: probability,
		Impact:      impact,
		Note:        "derived from dependency graph density",
	}
}

func resourceRisk(workgroups []domain.RelatedWorkgroup) domain.RiskEntry {
	if len(workgroups) == 0 {
		return domain.RiskEntry{
			Factor:      domain.RiskResource,
			Probability: 0.5,
			Impact:      0.4,
			Note:        "no matching workgroup found",
		}
	}
	utilization := 0.0
	for _, wg := range workgroups {
		if wg.Capacity.Utilization > utilization {
			utilization = wg.Capacity.Utilization
		}
	}
	return domain.RiskEntry{
		Factor:      domain.RiskResource,
		Probability: clampUnit(utilization),
		Impact:      0.4,
		Note:        "worst-case workgroup utilization",
	}
}

func timelineRisk(task *domain.WorkTask, todos []*domain.TodoItem) domain.RiskEntry {
	effort := totalEffort(todos)
	probability := clampUnit(effort / 200)
	impact := 0.3
	if task.Priority == domain.PriorityCritical || task.Priority == domain.PriorityHigh {
		impact = 0.6
	}
	return domain.RiskEntry{
		Factor:      domain.RiskTimeline,
		Probability: probability,
		Impact:      impact,
		Note:        "scaled by total estimated effort",
	}
}

func securityRisk(lower string, sensitivityScore int) domain.RiskEntry {
	probability := clampUnit(float64(sensitivityScore) / 100)
	for _, keyword := range []string{"security", "auth", "encryption", "token", "credential"} {
		if strings.Contains(lower, keyword) {
			probability = clampUnit(probability + 0.2)
			break
		}
	}
	return domain.RiskEntry{
		Factor:      domain.RiskSecurity,
		Probability: probability,
		Impact:      0.8,
		Note:        "sensitivity score and security-relevant content",
	}
}

func complianceRisk(lower string) domain.RiskEntry {
	probability := 0.05
	for _, keyword := range []string{"compliance", "gdpr", "hipaa", "sox", "pci", "audit", "regulatory"} {
		if strings.Contains(lower, keyword) {
			probability = 0.5
			break
		}
	}
	return domain.RiskEntry{
		Factor:      domain.RiskCompliance,
		Probability: probability,
		Impact:      0.7,
		Note:        "regulatory keywords in content",
	}
}

func businessRisk(task *domain.WorkTask) domain.RiskEntry {
	probability := 0.2
	impact := 0.1 * float64(task.Priority.Rank())
	return domain.RiskEntry{
		Factor:      domain.RiskBusiness,
		Probability: probability,
		Impact:      clampUnit(impact),
		Note:        "task priority",
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
