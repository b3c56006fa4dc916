package backends

import (
	"context"
	"sync"

	"github.com/weny2000/AIAgentSample-sub006/internal/logging"
	"github.com/weny2000/AIAgentSample-sub006/internal/ports"
)

// LogTransport is a ports.NotificationTransport that writes deliveries to the
// log. Idempotent on MessageID: repeats are dropped.
type LogTransport struct {
	logger logging.Logger

	mu   sync.Mutex
	seen map[string]bool
}

var _ ports.NotificationTransport = (*LogTransport)(nil)

// NewLogTransport constructs the logging transport.
func NewLogTransport() *LogTransport {
	return &LogTransport{
		logger: logging.NewComponentLogger("notify-log"),
		seen:   make(map[string]bool),
	}
}

func (t *LogTransport) Send(_ context.Context, n ports.Notification) error {
	t.mu.Lock()
	if t.seen[n.MessageID] {
		t.mu.Unlock()
		return nil
	}
	t.seen[n.MessageID] = true
	t.mu.Unlock()

	t.logger.Info("[%s->%s] %s: %s (urgency=%s)", n.Channel, n.Recipient, n.Subject, n.Body, n.Urgency)
	return nil
}

// Sent reports how many distinct notifications were delivered.
func (t *LogTransport) Sent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}
