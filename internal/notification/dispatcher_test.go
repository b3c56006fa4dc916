package notification

import (
	"context"
	"testing"
	"time"

	"github.com/weny2000/AIAgentSample-sub006/internal/backends"
	"github.com/weny2000/AIAgentSample-sub006/internal/domain"
	"github.com/weny2000/AIAgentSample-sub006/internal/ports"
)

func TestDispatchMatchesTaskAndKind(t *testing.T) {
	transport := backends.NewLogTransport()
	d := NewDispatcher(transport, nil)

	d.Register(Trigger{
		ID: "t1", TaskID: "task-1",
		Kinds:     []domain.EventKind{domain.EventBlockerOpened},
		Channel:   ports.ChannelSlack,
		Recipient: "#task-alerts",
	})
	d.Register(Trigger{
		ID: "t2", TaskID: "task-2",
		Channel:   ports.ChannelEmail,
		Recipient: "lead@example.com",
	})

	delivered := d.Dispatch(context.Background(), domain.Event{
		ID: "ev-1", Kind: domain.EventBlockerOpened, TaskID: "task-1", At: time.Now(),
		Blocker: &domain.Blocker{Kind: domain.BlockerTimeline, Severity: domain.SeverityHigh, Description: "overdue"},
	})
	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1 (only the task-1 trigger matches)", delivered)
	}

	delivered = d.Dispatch(context.Background(), domain.Event{
		ID: "ev-2", Kind: domain.EventStatusChanged, TaskID: "task-1", At: time.Now(),
	})
	if delivered != 0 {
		t.Fatalf("delivered = %d, want 0 (kind filter must hold)", delivered)
	}
}

func TestDispatchIsIdempotentPerEvent(t *testing.T) {
	transport := backends.NewLogTransport()
	d := NewDispatcher(transport, nil)
	d.Register(Trigger{ID: "t1", TaskID: "task-1", Recipient: "#alerts", Channel: ports.ChannelSlack})

	event := domain.Event{ID: "ev-1", Kind: domain.EventStatusChanged, TaskID: "task-1", At: time.Now()}
	d.Dispatch(context.Background(), event)
	d.Dispatch(context.Background(), event)

	if transport.Sent() != 1 {
		t.Fatalf("transport saw %d distinct messages, want 1 (redelivery must dedupe)", transport.Sent())
	}
}

func TestUnregisterStopsDelivery(t *testing.T) {
	transport := backends.NewLogTransport()
	d := NewDispatcher(transport, nil)
	id := d.Register(Trigger{TaskID: "task-1", Recipient: "#alerts", Channel: ports.ChannelSlack})

	if got := len(d.Triggers("task-1")); got != 1 {
		t.Fatalf("registered triggers = %d, want 1", got)
	}
	d.Unregister("task-1", id)
	if got := len(d.Triggers("task-1")); got != 0 {
		t.Fatalf("triggers after unregister = %d, want 0", got)
	}

	delivered := d.Dispatch(context.Background(), domain.Event{
		ID: "ev-1", Kind: domain.EventStatusChanged, TaskID: "task-1", At: time.Now(),
	})
	if delivered != 0 {
		t.Fatalf("delivered = %d after unregister, want 0", delivered)
	}
}

func TestRunConsumesChannelUntilClose(t *testing.T) {
	transport := backends.NewLogTransport()
	d := NewDispatcher(transport, nil)
	d.Register(Trigger{TaskID: "", Recipient: "#firehose", Channel: ports.ChannelSlack})

	events := make(chan domain.Event, 3)
	events <- domain.Event{ID: "ev-1", Kind: domain.EventStatusChanged, At: time.Now()}
	events <- domain.Event{ID: "ev-2", Kind: domain.EventBlockerOpened, At: time.Now()}
	close(events)

	done := make(chan struct{})
	go func() {
		d.Run(context.Background(), events)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the channel closed")
	}
	if transport.Sent() != 2 {
		t.Fatalf("transport saw %d messages, want 2", transport.Sent())
	}
}
