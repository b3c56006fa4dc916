package analysis

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/weny2000/AIAgentSample-sub006/internal/domain"
)

// Effort bounds per generated todo, in hours.
const (
	minEffortHours = 0.5
	maxEffortHours = 80
)

var (
	stepRefPattern = regexp.MustCompile(`(?i)\bstep\s+(\d+)\b`)
	orderedPattern = regexp.MustCompile(`^\s*(\d+)[.)]\s+`)
	bulletPattern  = regexp.MustCompile(`^\s*[-*]\s+`)
	markerPattern  = regexp.MustCompile(`(?i)\b(after|then|once|requires|depends on|following)\b`)
	// identPattern matches code-shaped tokens: dotted or snake_case names,
	// call syntax, camelCase.
	identPattern       = regexp.MustCompile(`[A-Za-z]\w*(?:\.\w+|_\w+|\(\))|\b[a-z]+[A-Z]\w*`)
	integrationPattern = regexp.MustCompile(`(?i)\b(integrat\w*|api|webhook|third[- ]party|external system|migration|protocol|interface)\b`)
)

type categoryRule struct {
	category domain.TodoCategory
	keywords []string
}

// categoryRules are checked in order; the first keyword hit wins.
var categoryRules = []categoryRule{
	{domain.CategoryResearch, []string{"research", "investigate", "evaluate", "analyze", "explore", "assess", "spike"}},
	{domain.CategoryDesign, []string{"design", "architect", "model", "plan", "draft", "specify", "schema"}},
	{domain.CategoryTesting, []string{"test", "verify", "validate", "qa", "benchmark"}},
	{domain.CategoryReview, []string{"review", "audit", "inspect"}},
	{domain.CategoryApproval, []string{"approve", "sign-off", "sign off", "authorize"}},
	{domain.CategoryDevelopment, []string{"implement", "build", "develop", "create", "write", "integrate", "migrate", "deploy", "configure", "fix", "refactor"}},
}

// step is one decomposed unit of work before it becomes a TodoItem.
type step struct {
	ordinal  int // 1-based position in the document
	number   int // explicit "1." list number, 0 when absent
	text     string
	category domain.TodoCategory
	deps     []int // indices into the steps slice
}

// generateTodos decomposes the task content into an acyclic todo graph.
// Dependency edges come from explicit markers ("after", "then", "requires",
// "depends on", "once", "step N" references) and from category ordering.
func generateTodos(task *domain.WorkTask, content string, workgroups []domain.RelatedWorkgroup, now time.Time) []*domain.TodoItem {
	steps := decompose(content)
	if len(steps) == 0 {
		steps = []step{{
			ordinal:  1,
			text:     "Execute: " + task.Title,
			category: domain.CategoryDevelopment,
		}}
	}

	linkExplicit(steps)
	linkCategoryOrder(steps)
	dropCycles(steps)

	todos := make([]*domain.TodoItem, len(steps))
	for i, s := range steps {
		todos[i] = &domain.TodoItem{
			ID:             uuid.NewString(),
			TaskID:         task.ID,
			Title:          title(s.text),
			Description:    s.text,
			Priority:       task.Priority,
			EstimatedHours: estimateEffort(s),
			Category:       s.category,
			Status:         domain.TodoPending,
			Assignee:       assign(s, workgroups),
			CompletionCriteria: []domain.CompletionCriterion{{
				ID:          uuid.NewString(),
				Description: "Deliverable submitted and approved",
				Mandatory:   s.category != domain.CategoryResearch,
			}},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if groups := relatedGroups(s, workgroups); len(groups) > 0 {
			todos[i].RelatedWorkgroups = groups
		}
	}
	for i, s := range steps {
		for _, dep := range s.deps {
			todos[i].Dependencies = append(todos[i].Dependencies, todos[dep].ID)
		}
		sort.Strings(todos[i].Dependencies)
	}
	return todos
}

// decompose splits content into steps: ordered list items and bullets first,
// falling back to sentences that carry an action verb.
func decompose(content string) []step {
	var steps []step
	listFound := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if m := orderedPattern.FindStringSubmatch(trimmed); m != nil {
			listFound = true
			steps = append(steps, newStep(len(steps)+1, atoi(m[1]), orderedPattern.ReplaceAllString(trimmed, "")))
			continue
		}
		if bulletPattern.MatchString(trimmed) {
			listFound = true
			steps = append(steps, newStep(len(steps)+1, 0, bulletPattern.ReplaceAllString(trimmed, "")))
		}
	}
	if listFound {
		return steps
	}

	for _, sentence := range splitSentences(content) {
		if inferCategory(sentence) == "" && !markerPattern.MatchString(sentence) {
			continue
		}
		category := inferCategory(sentence)
		if category == "" {
			category = domain.CategoryDevelopment
		}
		steps = append(steps, step{
			ordinal:  len(steps) + 1,
			text:     sentence,
			category: category,
		})
	}
	return steps
}

func newStep(ordinal, number int, text string) step {
	category := inferCategory(text)
	if category == "" {
		category = domain.CategoryDevelopment
	}
	return step{ordinal: ordinal, number: number, text: strings.TrimSpace(text), category: category}
}

func inferCategory(text string) domain.TodoCategory {
	lower := strings.ToLower(text)
	for _, rule := range categoryRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(lower, keyword) {
				return rule.category
			}
		}
	}
	return ""
}

// linkExplicit adds edges from lexical markers. "step N" references bind to
// the numbered step; bare sequence markers bind to the preceding step.
func linkExplicit(steps []step) {
	byNumber := make(map[int]int, len(steps))
	for i, s := range steps {
		if s.number > 0 {
			byNumber[s.number] = i
		}
	}
	for i := range steps {
		for _, m := range stepRefPattern.FindAllStringSubmatch(steps[i].text, -1) {
			if target, ok := byNumber[atoi(m[1])]; ok && target != i {
				steps[i].deps = appendDep(steps[i].deps, target)
			}
		}
		if i > 0 && markerPattern.MatchString(steps[i].text) {
			steps[i].deps = appendDep(steps[i].deps, i-1)
		}
	}
}

// linkCategoryOrder makes each step depend on the latest earlier step of a
// strictly earlier workflow category, so testing follows development and
// approval comes last even without explicit markers.
func linkCategoryOrder(steps []step) {
	for i := range steps {
		if len(steps[i].deps) > 0 {
			continue
		}
		for j := i - 1; j >= 0; j-- {
			if steps[j].category.Order() < steps[i].category.Order() {
				steps[i].deps = appendDep(steps[i].deps, j)
				break
			}
		}
	}
}

// dropCycles removes back edges so the result is a DAG. Steps are visited in
// document order; an edge pointing at an unfinished ancestor is discarded.
func dropCycles(steps []step) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make([]int, len(steps))

	var visit func(int)
	visit = func(i int) {
		state[i] = visiting
		kept := steps[i].deps[:0]
		for _, dep := range steps[i].deps {
			if state[dep] == visiting {
				continue // back edge
			}
			if state[dep] == unvisited {
				visit(dep)
			}
			kept = append(kept, dep)
		}
		steps[i].deps = kept
		state[i] = done
	}
	for i := range steps {
		if state[i] == unvisited {
			visit(i)
		}
	}
}

// estimateEffort is a deterministic heuristic: a category base scaled by the
// amount of text, identifier density, and integration markers, clamped to
// the configured bounds.
func estimateEffort(s step) float64 {
	base := map[domain.TodoCategory]float64{
		domain.CategoryResearch:    4,
		domain.CategoryDesign:      6,
		domain.CategoryDevelopment: 8,
		domain.CategoryTesting:     4,
		domain.CategoryReview:      2,
		domain.CategoryApproval:    1,
	}[s.category]
	if base == 0 {
		base = 8
	}

	words := float64(len(strings.Fields(s.text)))
	hours := base * (1 + words/40)

	// Dense identifier use signals code-touching work.
	idents := float64(len(identPattern.FindAllString(s.text, -1)))
	if idents > 6 {
		idents = 6
	}
	hours *= 1 + idents*0.1

	if integrationPattern.MatchString(s.text) {
		hours *= 1.5
	}
	if hours < minEffortHours {
		hours = minEffortHours
	}
	if hours > maxEffortHours {
		hours = maxEffortHours
	}
	return hours
}

// assign picks the highest-ranked workgroup whose matched skills appear in
// the step text. No match leaves the todo unassigned.
func assign(s step, workgroups []domain.RelatedWorkgroup) string {
	lower := strings.ToLower(s.text)
	for _, wg := range workgroups {
		for _, skill := range wg.SkillMatch.MatchedSkills {
			if strings.Contains(lower, strings.ToLower(skill)) {
				return wg.TeamID
			}
		}
	}
	return ""
}

func relatedGroups(s step, workgroups []domain.RelatedWorkgroup) []string {
	lower := strings.ToLower(s.text)
	var related []string
	for _, wg := range workgroups {
		for _, skill := range wg.SkillMatch.MatchedSkills {
			if strings.Contains(lower, strings.ToLower(skill)) {
				related = append(related, wg.TeamID)
				break
			}
		}
	}
	return related
}

func title(text string) string {
	const maxTitle = 80
	if len(text) <= maxTitle {
		return text
	}
	cut := strings.LastIndex(text[:maxTitle], " ")
	if cut < maxTitle/2 {
		cut = maxTitle
	}
	return text[:cut] + "..."
}

func appendDep(deps []int, target int) []int {
	for _, d := range deps {
		if d == target {
			return deps
		}
	}
	return append(deps, target)
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

// totalEffort sums the per-todo estimates.
func totalEffort(todos []*domain.TodoItem) float64 {
	total := 0.0
	for _, t := range todos {
		total += t.EstimatedHours
	}
	return total
}

// refinementParent matches a new todo against surviving todos from the prior
// analysis so re-analysis links refinements instead of duplicating work.
func refinementParent(todo *domain.TodoItem, kept []*domain.TodoItem) string {
	newTerms := terms(todo.Title + " " + todo.Description)
	bestID, bestOverlap := "", 0.0
	for _, prior := range kept {
		priorTerms := make(map[string]bool)
		for _, t := range terms(prior.Title + " " + prior.Description) {
			priorTerms[t] = true
		}
		if len(priorTerms) == 0 || len(newTerms) == 0 {
			continue
		}
		hits := 0
		for _, t := range newTerms {
			if priorTerms[t] {
				hits++
			}
		}
		overlap := float64(hits) / float64(len(newTerms))
		if overlap > bestOverlap {
			bestID, bestOverlap = prior.ID, overlap
		}
	}
	if bestOverlap >= 0.6 {
		return bestID
	}
	return ""
}
