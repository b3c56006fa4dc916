package knowledge

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/weny2000/AIAgentSample-sub006/internal/ports"
)

// Document seeds the embedded knowledge base.
type Document struct {
	ID         string
	SourceType string
	Title      string
	Content    string
}

// ChromemBackend implements ports.SearchBackend on an in-process chromem-go
// collection. Feedback labels are recorded for later re-ranking.
type ChromemBackend struct {
	db         *chromem.DB
	collection *chromem.Collection

	mu       sync.Mutex
	feedback map[string]bool // queryID|sourceID -> relevant
}

var _ ports.SearchBackend = (*ChromemBackend)(nil)

// NewChromemBackend builds a collection over the given documents. embed may
// be nil, in which case a deterministic local term-hash embedding is used so
// the backend works without an external model.
func NewChromemBackend(collectionName string, docs []Document, embed chromem.EmbeddingFunc) (*ChromemBackend, error) {
	if collectionName == "" {
		collectionName = "knowledge"
	}
	if embed == nil {
		embed = localTermEmbedding
	}

	db := chromem.NewDB()
	collection, err := db.GetOrCreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	backend := &ChromemBackend{
		db:         db,
		collection: collection,
		feedback:   make(map[string]bool),
	}

	ctx := context.Background()
	for _, doc := range docs {
		err := collection.AddDocument(ctx, chromem.Document{
			ID:      doc.ID,
			Content: doc.Content,
			Metadata: map[string]string{
				"source_type": doc.SourceType,
				"title":       doc.Title,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("add document %s: %w", doc.ID, err)
		}
	}

	return backend, nil
}

func (b *ChromemBackend) Search(ctx context.Context, query string, filters ports.SearchFilters) ([]ports.SearchResult, error) {
	topK := filters.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	if count := b.collection.Count(); topK > count {
		topK = count
	}
	if topK == 0 {
		return nil, nil
	}

	var where map[string]string
	if filters.TeamID != "" {
		where = map[string]string{"team_id": filters.TeamID}
	}

	results, err := b.collection.Query(ctx, query, topK, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	searchResults := make([]ports.SearchResult, 0, len(results))
	for _, r := range results {
		if len(filters.SourceTypes) > 0 && !containsFold(filters.SourceTypes, r.Metadata["source_type"]) {
			continue
		}
		searchResults = append(searchResults, ports.SearchResult{
			SourceID:   r.ID,
			SourceType: r.Metadata["source_type"],
			Title:      r.Metadata["title"],
			Snippet:    snippet(r.Content),
			Relevance:  clamp01(float64(r.Similarity)),
		})
	}
	return searchResults, nil
}

func (b *ChromemBackend) SubmitFeedback(_ context.Context, queryID, sourceID string, relevant bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.feedback[queryID+"|"+sourceID] = relevant
	return nil
}

// FeedbackCount reports how many labels have been recorded.
func (b *ChromemBackend) FeedbackCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.feedback)
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}

func snippet(content string) string {
	const maxSnippet = 200
	content = strings.TrimSpace(content)
	if len(content) > maxSnippet {
		return content[:maxSnippet] + "..."
	}
	return content
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

const embeddingDims = 128

// localTermEmbedding is a deterministic bag-of-terms hash embedding. It is no
// substitute for a learned model but gives stable cosine similarity for tests
// and offline wiring.
func localTermEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, embeddingDims)
	for term := range keywords(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(term))
		vec[h.Sum32()%embeddingDims]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}
