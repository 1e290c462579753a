package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/ertledger/internal/domain"
	"github.com/alanyoungcy/ertledger/internal/ledger"
)

// Bus channel and stream carrying committed ledger events as JSON.
const (
	LedgerChannel = "ledger"
	LedgerStream  = "ledger:events"
)

const publishTimeout = 5 * time.Second

var _ ledger.EventSink = (*EventPublisher)(nil)

// Alerter raises operator notifications for selected events.
type Alerter interface {
	Wants(typ domain.EventType) bool
	NotifyEvent(ctx context.Context, ev domain.Event) error
}

// EventPublisher fans committed ledger events out to the event bus and the
// operator alerter. Emit only enqueues; Run does the I/O on one goroutine so
// commit order is kept and the ledger never waits on the network.
type EventPublisher struct {
	bus     domain.EventBus
	alerter Alerter
	queue   chan domain.Event
	logger  *slog.Logger
}

// NewEventPublisher creates a publisher with room for buffer pending events.
// bus and alerter may be nil.
func NewEventPublisher(bus domain.EventBus, alerter Alerter, buffer int, logger *slog.Logger) *EventPublisher {
	if buffer <= 0 {
		buffer = 1024
	}
	return &EventPublisher{
		bus:     bus,
		alerter: alerter,
		queue:   make(chan domain.Event, buffer),
		logger:  logger.With(slog.String("component", "event_publisher")),
	}
}

// Emit enqueues events. When the queue is full the overflow is dropped and
// logged; the events remain in the store's event log.
func (p *EventPublisher) Emit(ctx context.Context, events []domain.Event) {
	for _, ev := range events {
		select {
		case p.queue <- ev:
		default:
			p.logger.WarnContext(ctx, "event_publisher: queue full, event dropped",
				slog.String("event_id", ev.ID),
				slog.String("type", string(ev.Type)),
			)
		}
	}
}

// Run publishes queued events until ctx is cancelled.
func (p *EventPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-p.queue:
			p.publish(ctx, ev)
		}
	}
}

func (p *EventPublisher) publish(ctx context.Context, ev domain.Event) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if p.bus != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			p.logger.ErrorContext(ctx, "event_publisher: marshal", slog.String("error", err.Error()))
			return
		}
		if err := p.bus.Publish(ctx, LedgerChannel, payload); err != nil {
			p.logger.WarnContext(ctx, "event_publisher: publish failed",
				slog.String("event_id", ev.ID),
				slog.String("error", err.Error()),
			)
		}
		if err := p.bus.StreamAppend(ctx, LedgerStream, payload); err != nil {
			p.logger.WarnContext(ctx, "event_publisher: stream append failed",
				slog.String("event_id", ev.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if p.alerter != nil && p.alerter.Wants(ev.Type) {
		if err := p.alerter.NotifyEvent(ctx, ev); err != nil {
			p.logger.WarnContext(ctx, "event_publisher: alert failed",
				slog.String("type", string(ev.Type)),
				slog.String("error", err.Error()),
			)
		}
	}
}
