package conversation

import (
	"context"
	"time"

	"github.com/weny2000/AIAgentSample-sub006/internal/domain"
)

// DefaultSweepInterval is how often the background sweeper runs.
const DefaultSweepInterval = 10 * time.Minute

// SweepExpired marks active sessions idle past the expiry as expired and
// returns how many were swept. Appends to an expired session fail with an
// invalid-state error.
func (o *Orchestrator) SweepExpired(ctx context.Context) (int, error) {
	sessions, err := o.store.ListSessions(ctx, domain.SessionActive)
	if err != nil {
		return 0, err
	}

	cutoff := o.clock.Now().Add(-o.idleExpiry)
	swept := 0
	for _, session := range sessions {
		if session.LastActivityAt.After(cutoff) {
			continue
		}
		session.Status = domain.SessionExpired
		if err := o.store.UpdateSession(ctx, session); err != nil {
			o.logger.Warn("failed to expire session %s: %v", session.ID, err)
			continue
		}
		o.cache.Remove(session.ID)
		swept++
	}
	if swept > 0 {
		o.logger.Info("expired %d idle sessions", swept)
	}
	return swept, nil
}

// RunSweeper loops SweepExpired until the context is cancelled.
func (o *Orchestrator) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.SweepExpired(ctx); err != nil {
				o.logger.Error("session sweep failed: %v", err)
			}
		}
	}
}
