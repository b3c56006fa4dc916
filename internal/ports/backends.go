package ports

import (
	"context"

	"github.com/weny2000/AIAgentSample-sub006/internal/domain"
)

// SearchFilters narrows a knowledge search.
type SearchFilters struct {
	SourceTypes []string
	TeamID      string
	TopK        int
}

// SearchResult is one ranked hit from the search backend.
type SearchResult struct {
	SourceID   string
	SourceType string
	Title      string
	Snippet    string
	Relevance  float64 // 0-1
}

// SearchBackend is the knowledge retrieval capability.
type SearchBackend interface {
	Search(ctx context.Context, query string, filters SearchFilters) ([]SearchResult, error)
	SubmitFeedback(ctx context.Context, queryID string, sourceID string, relevant bool) error
}

// PIIDetection is one span found by the PII recognizer.
type PIIDetection struct {
	Type       string // EMAIL, SSN, PHONE, NAME, ADDRESS, ...
	Start      int
	End        int
	Confidence float64
}

// NLPBackend bundles the language capabilities. All calls honor the context
// deadline; callers wrap them in circuit breakers.
type NLPBackend interface {
	ExtractKeyPoints(ctx context.Context, text string) ([]domain.KeyPoint, error)
	DetectPII(ctx context.Context, text string) ([]PIIDetection, error)
	Summarize(ctx context.Context, messages []domain.Message) (string, error)
}

// NotificationChannel selects the delivery transport.
type NotificationChannel string

const (
	ChannelSlack NotificationChannel = "slack"
	ChannelTeams NotificationChannel = "teams"
	ChannelEmail NotificationChannel = "email"
	ChannelSNS   NotificationChannel = "sns"
)

// NotificationUrgency prioritizes delivery.
type NotificationUrgency string

const (
	UrgencyLow      NotificationUrgency = "low"
	UrgencyNormal   NotificationUrgency = "normal"
	UrgencyHigh     NotificationUrgency = "high"
	UrgencyCritical NotificationUrgency = "critical"
)

// Notification is one outbound message. Transports are idempotent on MessageID.
type Notification struct {
	MessageID string
	Recipient string
	Channel   NotificationChannel
	Subject   string
	Body      string
	Urgency   NotificationUrgency
}

// NotificationTransport delivers notifications.
type NotificationTransport interface {
	Send(ctx context.Context, n Notification) error
}

// ContentVerdict is the rules engine's judgment of free text.
type ContentVerdict struct {
	Compliant  bool
	Score      float64 // 0-100
	Violations []string
}

// ArtifactInput describes a deliverable handed to the rules engine.
type ArtifactInput struct {
	FileName string
	FileType string
	Size     int64
	Content  []byte // text types only; nil for binary
}

// RulesEngine validates content and artifacts against policy.
type RulesEngine interface {
	ValidateContent(ctx context.Context, text string, policy string) (ContentVerdict, error)
	ValidateArtifact(ctx context.Context, artifact ArtifactInput) ([]domain.ValidationCheck, error)
}

// KMS encrypts and decrypts payloads by key id.
type KMS interface {
	Encrypt(ctx context.Context, keyID string, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, keyID string, ciphertext []byte) ([]byte, error)
}
