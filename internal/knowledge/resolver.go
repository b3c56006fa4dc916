package knowledge

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/weny2000/AIAgentSample-sub006/internal/apperrors"
	"github.com/weny2000/AIAgentSample-sub006/internal/domain"
	"github.com/weny2000/AIAgentSample-sub006/internal/logging"
	"github.com/weny2000/AIAgentSample-sub006/internal/ports"
)

// DefaultTopK bounds the returned workgroup and knowledge lists.
const DefaultTopK = 5

// Ranking weights for the workgroup score.
const (
	weightSkillMatch        = 0.5
	weightCapacityFit       = 0.2
	weightHistoricalSuccess = 0.2
	weightRecentSimilarity  = 0.1
)

// Resolution is the resolver output. Degraded is set when the search backend
// failed and knowledge references are empty for that reason.
type Resolution struct {
	KnowledgeRefs []domain.KnowledgeReference
	Workgroups    []domain.RelatedWorkgroup
	Degraded      bool
}

// Resolver ranks workgroups and retrieves knowledge references.
type Resolver struct {
	directory *Directory
	search    ports.SearchBackend
	breaker   *apperrors.CircuitBreaker
	logger    logging.Logger
	topK      int
}

// NewResolver constructs a resolver. search may be nil; resolution then runs
// in degraded mode with workgroup ranking only.
func NewResolver(directory *Directory, search ports.SearchBackend, breaker *apperrors.CircuitBreaker, topK int) *Resolver {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Resolver{
		directory: directory,
		search:    search,
		breaker:   breaker,
		logger:    logging.NewComponentLogger("knowledge-resolver"),
		topK:      topK,
	}
}

// Resolve ranks workgroups against the task text and key points, and fetches
// knowledge references concurrently. Search failures degrade, never abort.
func (r *Resolver) Resolve(ctx context.Context, text string, keyPoints []domain.KeyPoint) (*Resolution, error) {
	query := buildQuery(text, keyPoints)
	resolution := &Resolution{}

	var group errgroup.Group
	group.Go(func() error {
		resolution.Workgroups = r.rankWorkgroups(query)
		return nil
	})
	group.Go(func() error {
		refs, degraded := r.searchKnowledge(ctx, query)
		resolution.KnowledgeRefs = refs
		resolution.Degraded = degraded
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return resolution, nil
}

// SubmitFeedback forwards a relevance label to the search backend.
func (r *Resolver) SubmitFeedback(ctx context.Context, queryID, sourceID string, relevant bool) error {
	if r.search == nil {
		return nil
	}
	return r.search.SubmitFeedback(ctx, queryID, sourceID, relevant)
}

func buildQuery(text string, keyPoints []domain.KeyPoint) string {
	parts := []string{text}
	for _, kp := range keyPoints {
		parts = append(parts, kp.Text)
	}
	return strings.Join(parts, " ")
}

func (r *Resolver) rankWorkgroups(query string) []domain.RelatedWorkgroup {
	terms := keywords(query)

	ranked := make([]domain.RelatedWorkgroup, 0, len(r.directory.Groups()))
	for _, group := range r.directory.Groups() {
		match := skillMatch(group, terms)
		similarity := recentSimilarity(group, terms)
		capacity := group.capacityFit()

		relevance := weightSkillMatch*match.Score +
			weightCapacityFit*capacity +
			weightHistoricalSuccess*group.HistoricalSuccess +
			weightRecentSimilarity*similarity

		if relevance <= 0 {
			continue
		}

		ranked = append(ranked, domain.RelatedWorkgroup{
			TeamID:    group.TeamID,
			TeamName:  group.TeamName,
			Relevance: relevance,
			SkillMatch: match,
			Capacity: domain.CapacityInfo{
				ActiveTasks: group.ActiveTasks,
				Limit:       group.CapacityLimit,
				Utilization: 1 - capacity,
			},
			HistoricalSuccess:      group.HistoricalSuccess,
			RecentSimilarity:       similarity,
			RecommendedInvolvement: involvement(group, match.Score),
		})
	}

	free := make(map[string]int, len(r.directory.Groups()))
	for _, group := range r.directory.Groups() {
		free[group.TeamID] = group.freeCapacity()
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Relevance != ranked[j].Relevance {
			return ranked[i].Relevance > ranked[j].Relevance
		}
		if free[ranked[i].TeamID] != free[ranked[j].TeamID] {
			return free[ranked[i].TeamID] > free[ranked[j].TeamID]
		}
		return ranked[i].TeamID < ranked[j].TeamID
	})

	if len(ranked) > r.topK {
		ranked = ranked[:r.topK]
	}
	return ranked
}

func skillMatch(group Workgroup, terms map[string]bool) domain.SkillMatch {
	var matched, missing []string
	score := 0.0
	weightSum := 0.0
	for _, skill := range group.Skills {
		weightSum += skill.Proficiency
		if terms[strings.ToLower(skill.Name)] {
			matched = append(matched, skill.Name)
			score += skill.Proficiency
		} else {
			missing = append(missing, skill.Name)
		}
	}
	if weightSum > 0 {
		score /= weightSum
	}
	return domain.SkillMatch{MatchedSkills: matched, MissingSkills: missing, Score: score}
}

func recentSimilarity(group Workgroup, terms map[string]bool) float64 {
	if len(group.RecentTopics) == 0 {
		return 0
	}
	hits := 0
	for _, topic := range group.RecentTopics {
		for term := range keywords(topic) {
			if terms[term] {
				hits++
				break
			}
		}
	}
	return float64(hits) / float64(len(group.RecentTopics))
}

func involvement(group Workgroup, matchScore float64) domain.Involvement {
	if group.Governance && matchScore > 0 {
		return domain.InvolvementApproval
	}
	switch {
	case matchScore >= 0.75:
		return domain.InvolvementCollaboration
	case matchScore >= 0.5:
		return domain.InvolvementConsultation
	default:
		return domain.InvolvementNotification
	}
}

func (r *Resolver) searchKnowledge(ctx context.Context, query string) ([]domain.KnowledgeReference, bool) {
	if r.search == nil {
		return nil, true
	}

	results, err := apperrors.ExecuteFunc(r.breaker, ctx, func(ctx context.Context) ([]ports.SearchResult, error) {
		return r.search.Search(ctx, query, ports.SearchFilters{TopK: r.topK})
	})
	if err != nil {
		r.logger.Warn("knowledge search degraded: %v", err)
		return nil, true
	}

	refs := make([]domain.KnowledgeReference, 0, len(results))
	for _, result := range results {
		refs = append(refs, domain.KnowledgeReference{
			SourceID:   result.SourceID,
			SourceType: result.SourceType,
			Title:      result.Title,
			Snippet:    result.Snippet,
			Relevance:  result.Relevance,
		})
	}
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].Relevance > refs[j].Relevance
	})
	if len(refs) > r.topK {
		refs = refs[:r.topK]
	}
	return refs, false
}
