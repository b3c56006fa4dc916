package sensitivity

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/weny2000/AIAgentSample-sub006/internal/apperrors"
	"github.com/weny2000/AIAgentSample-sub006/internal/logging"
	"github.com/weny2000/AIAgentSample-sub006/internal/ports"
)

// DefaultScanTimeout bounds one external PII recognizer call.
const DefaultScanTimeout = 10 * time.Second

// perCategoryCap clamps how many detections per category count toward the score.
const perCategoryCap = 5

// DataProtectionPolicy tunes gating per team or tenant.
type DataProtectionPolicy struct {
	// ApprovalThreshold is the score at or above which human approval is
	// required. Zero means the default of 50.
	ApprovalThreshold int `json:"approval_threshold,omitempty"`
	// AutoMask replaces detected spans in the masked content output.
	AutoMask bool `json:"auto_mask"`
}

func (p *DataProtectionPolicy) threshold() int {
	if p == nil || p.ApprovalThreshold <= 0 {
		return 50
	}
	return p.ApprovalThreshold
}

// ScanResult is the outcome of one sensitivity scan. Scans are deterministic
// for fixed detector backends: identical input yields identical score,
// categories, and masked content.
type ScanResult struct {
	Detections    []Detection           `json:"detections"`
	Categories    map[Category]Severity `json:"categories"` // worst severity per category
	Score         int                   `json:"score"`      // 0-100
	MaskedContent string                `json:"masked_content"`
	Degraded      bool                  `json:"degraded,omitempty"`
	ScannedAt     time.Time             `json:"scanned_at"`
}

// Gate composes the external PII recognizer with the regex rule battery.
type Gate struct {
	nlp     ports.NLPBackend
	breaker *apperrors.CircuitBreaker
	clock   ports.Clock
	logger  logging.Logger
	timeout time.Duration
}

// NewGate constructs a sensitivity gate. nlp may be nil, in which case PII
// detection always uses the regex fallback.
func NewGate(nlp ports.NLPBackend, breaker *apperrors.CircuitBreaker, clock ports.Clock) *Gate {
	if clock == nil {
		clock = ports.SystemClock()
	}
	return &Gate{
		nlp:     nlp,
		breaker: breaker,
		clock:   clock,
		logger:  logging.NewComponentLogger("sensitivity-gate"),
		timeout: DefaultScanTimeout,
	}
}

// Scan runs the full detector battery over content and scores the result.
// A recognizer-backend failure degrades to the regex PII fallback; only a
// cancelled context surfaces as a scan failure so callers can fail closed.
func (g *Gate) Scan(ctx context.Context, content string, policy *DataProtectionPolicy) (*ScanResult, error) {
	if ctx.Err() != nil {
		return nil, apperrors.ScanFailed(ctx.Err())
	}

	detections := runRules(content, allRegexRules())

	piiDetections, degraded := g.detectPII(ctx, content)
	if ctx.Err() != nil {
		return nil, apperrors.ScanFailed(ctx.Err())
	}
	detections = append(detections, piiDetections...)

	detections = dedupeOverlaps(detections)
	sort.Slice(detections, func(i, j int) bool {
		if detections[i].Start == detections[j].Start {
			return detections[i].End > detections[j].End
		}
		return detections[i].Start < detections[j].Start
	})

	result := &ScanResult{
		Detections: detections,
		Categories: worstPerCategory(detections),
		Score:      score(detections),
		Degraded:   degraded,
		ScannedAt:  g.clock.Now(),
	}

	if policy != nil && policy.AutoMask {
		result.MaskedContent = Mask(content, detections)
	} else {
		result.MaskedContent = content
	}

	return result, nil
}

// RequiresApproval decides whether the scan outcome holds the submission for
// human review: score at or above the policy threshold, any critical
// category, or any credential detection at all.
func RequiresApproval(result *ScanResult, policy *DataProtectionPolicy) bool {
	if result == nil {
		return true // fail closed
	}
	if result.Score >= policy.threshold() {
		return true
	}
	for _, severity := range result.Categories {
		if severity == SeverityCritical {
			return true
		}
	}
	for _, d := range result.Detections {
		if d.Category == CategoryCredentials {
			return true
		}
	}
	return false
}

func (g *Gate) detectPII(ctx context.Context, content string) ([]Detection, bool) {
	if g.nlp == nil {
		return runRules(content, piiFallbackRules), true
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := apperrors.ExecuteFunc(g.breaker, callCtx, func(ctx context.Context) ([]ports.PIIDetection, error) {
		return g.nlp.DetectPII(ctx, content)
	})
	if err != nil {
		g.logger.Warn("PII recognizer unavailable, using regex fallback: %v", err)
		return runRules(content, piiFallbackRules), true
	}

	detections := make([]Detection, 0, len(raw))
	for _, d := range raw {
		if d.Start < 0 || d.End > len(content) || d.Start >= d.End {
			continue
		}
		detections = append(detections, Detection{
			Category:   CategoryPII,
			Type:       d.Type,
			Severity:   piiSeverity(d.Type),
			Start:      d.Start,
			End:        d.End,
			Confidence: d.Confidence,
		})
	}
	return detections, false
}

func piiSeverity(piiType string) Severity {
	switch piiType {
	case "SSN", "PASSPORT", "DRIVER_LICENSE":
		return SeverityHigh
	case "NAME", "ADDRESS", "DOB":
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// score sums severity weights per category (count clamped at 5), applies the
// category multiplier, and clips the normalized total to [0, 100].
func score(detections []Detection) int {
	perCategory := make(map[Category][]Detection)
	for _, d := range detections {
		perCategory[d.Category] = append(perCategory[d.Category], d)
	}

	total := 0.0
	for category, group := range perCategory {
		sort.Slice(group, func(i, j int) bool {
			return group[i].Severity.Weight() > group[j].Severity.Weight()
		})
		if len(group) > perCategoryCap {
			group = group[:perCategoryCap]
		}
		sum := 0.0
		for _, d := range group {
			sum += d.Severity.Weight()
		}
		total += sum * categoryWeight(category)
	}

	if total > 100 {
		total = 100
	}
	return int(math.Round(total))
}

func worstPerCategory(detections []Detection) map[Category]Severity {
	worst := make(map[Category]Severity)
	for _, d := range detections {
		if current, ok := worst[d.Category]; !ok || d.Severity.Weight() > current.Weight() {
			worst[d.Category] = d.Severity
		}
	}
	return worst
}

// dedupeOverlaps drops detections fully contained in another detection so
// masking never produces nested placeholders.
func dedupeOverlaps(detections []Detection) []Detection {
	if len(detections) < 2 {
		return detections
	}
	kept := make([]Detection, 0, len(detections))
	for i, d := range detections {
		contained := false
		for j, other := range detections {
			if i == j {
				continue
			}
			if other.Start <= d.Start && other.End >= d.End &&
				((other.End-other.Start) > (d.End-d.Start) || j < i) {
				contained = true
				break
			}
		}
		if !contained {
			kept = append(kept, d)
		}
	}
	return kept
}

// Mask replaces every detection range with a typed placeholder. Ranges are
// applied in descending start order so earlier offsets remain valid.
func Mask(content string, detections []Detection) string {
	ordered := append([]Detection(nil), detections...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Start > ordered[j].Start
	})

	masked := content
	for _, d := range ordered {
		if d.Start < 0 || d.End > len(masked) || d.Start >= d.End {
			continue
		}
		placeholder := fmt.Sprintf("[%s_REDACTED]", d.Type)
		masked = masked[:d.Start] + placeholder + masked[d.End:]
	}
	return masked
}
