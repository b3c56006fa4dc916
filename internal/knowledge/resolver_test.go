package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/weny2000/AIAgentSample-sub006/internal/domain"
	"github.com/weny2000/AIAgentSample-sub006/internal/ports"
)

type stubSearch struct {
	results []ports.SearchResult
	err     error
	queries int
}

func (s *stubSearch) Search(context.Context, string, ports.SearchFilters) ([]ports.SearchResult, error) {
	s.queries++
	return s.results, s.err
}

func (s *stubSearch) SubmitFeedback(context.Context, string, string, bool) error {
	return nil
}

func TestResolveRanksSecurityTeamForOAuthWork(t *testing.T) {
	resolver := NewResolver(NewDirectory(DefaultWorkgroups()), &stubSearch{}, nil, 5)

	resolution, err := resolver.Resolve(context.Background(),
		"Implement OAuth authentication with token encryption for the portal", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(resolution.Workgroups) == 0 {
		t.Fatal("no workgroups resolved")
	}

	top := resolution.Workgroups[0]
	if top.TeamID != "security-team" {
		t.Fatalf("top workgroup = %s, want security-team", top.TeamID)
	}
	if top.RecommendedInvolvement != domain.InvolvementApproval {
		t.Fatalf("security-team involvement = %s, want approval (governance group)", top.RecommendedInvolvement)
	}
	if len(top.SkillMatch.MatchedSkills) == 0 {
		t.Fatal("security-team matched no skills")
	}
}

func TestResolveTruncatesToTopK(t *testing.T) {
	resolver := NewResolver(NewDirectory(DefaultWorkgroups()), &stubSearch{}, nil, 2)

	resolution, err := resolver.Resolve(context.Background(),
		"database api testing design security analytics ui review", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(resolution.Workgroups) > 2 {
		t.Fatalf("got %d workgroups, want at most 2", len(resolution.Workgroups))
	}
}

func TestResolveDegradesWhenSearchFails(t *testing.T) {
	search := &stubSearch{err: errors.New("backend down")}
	resolver := NewResolver(NewDirectory(DefaultWorkgroups()), search, nil, 5)

	resolution, err := resolver.Resolve(context.Background(), "implement api integration", nil)
	if err != nil {
		t.Fatalf("Resolve must not fail on search errors: %v", err)
	}
	if !resolution.Degraded {
		t.Fatal("resolution must be degraded when search fails")
	}
	if len(resolution.KnowledgeRefs) != 0 {
		t.Fatalf("degraded resolution carries %d refs, want 0", len(resolution.KnowledgeRefs))
	}
	if len(resolution.Workgroups) == 0 {
		t.Fatal("workgroup ranking must survive a search outage")
	}
}

func TestResolveReturnsRankedKnowledgeRefs(t *testing.T) {
	search := &stubSearch{results: []ports.SearchResult{
		{SourceID: "kb-1", SourceType: "runbook", Title: "OAuth setup", Relevance: 0.4},
		{SourceID: "kb-2", SourceType: "adr", Title: "Token storage", Relevance: 0.9},
	}}
	resolver := NewResolver(NewDirectory(DefaultWorkgroups()), search, nil, 5)

	resolution, err := resolver.Resolve(context.Background(), "oauth token storage", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(resolution.KnowledgeRefs) != 2 {
		t.Fatalf("got %d refs, want 2", len(resolution.KnowledgeRefs))
	}
	if resolution.KnowledgeRefs[0].SourceID != "kb-2" {
		t.Fatalf("refs not sorted by relevance: first is %s", resolution.KnowledgeRefs[0].SourceID)
	}
}

func TestChromemBackendSearchAndFilter(t *testing.T) {
	backend, err := NewChromemBackend("test", []Document{
		{ID: "d1", SourceType: "runbook", Title: "OAuth rotation", Content: "rotate oauth tokens every ninety days"},
		{ID: "d2", SourceType: "adr", Title: "Cache design", Content: "cache invalidation strategy for the session store"},
	}, nil)
	if err != nil {
		t.Fatalf("NewChromemBackend: %v", err)
	}

	results, err := backend.Search(context.Background(), "oauth token rotation", ports.SearchFilters{TopK: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("no results")
	}
	if results[0].SourceID != "d1" {
		t.Fatalf("top result = %s, want d1", results[0].SourceID)
	}

	filtered, err := backend.Search(context.Background(), "oauth", ports.SearchFilters{TopK: 2, SourceTypes: []string{"adr"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range filtered {
		if r.SourceType != "adr" {
			t.Fatalf("filter leaked source type %s", r.SourceType)
		}
	}

	if err := backend.SubmitFeedback(context.Background(), "q1", "d1", true); err != nil {
		t.Fatalf("SubmitFeedback: %v", err)
	}
	if backend.FeedbackCount() != 1 {
		t.Fatalf("feedback count = %d, want 1", backend.FeedbackCount())
	}
}
