// Package notify sends operator alerts for ledger events to chat channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ertledger/internal/domain"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// DefaultEvents are the event types worth waking an operator for.
var DefaultEvents = []domain.EventType{
	domain.EventBreakerTripped,
	domain.EventRightLiquidated,
	domain.EventInsurancePayout,
	domain.EventExposureNearLimit,
}

// Notifier fans alerts out to every sender. Only events whose type is in the
// allowed set are forwarded.
type Notifier struct {
	senders []Sender
	events  map[domain.EventType]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list selects DefaultEvents.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventType]bool)
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[domain.EventType(e)] = true
		}
	}
	if len(allowed) == 0 {
		for _, e := range DefaultEvents {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Wants reports whether events of typ are forwarded.
func (n *Notifier) Wants(typ domain.EventType) bool {
	return len(n.senders) > 0 && n.events[typ]
}

// NotifyEvent formats ev and sends it if its type is selected.
func (n *Notifier) NotifyEvent(ctx context.Context, ev domain.Event) error {
	if !n.Wants(ev.Type) {
		return nil
	}
	title, message := Format(ev)
	return n.dispatch(ctx, title, message)
}

// NotifyAll sends to every sender regardless of the event filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch delivers to every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "notify: sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notify: sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// Format renders ev as an alert title and body.
func Format(ev domain.Event) (string, string) {
	var title string
	switch ev.Type {
	case domain.EventBreakerTripped:
		title = "Circuit breaker tripped"
	case domain.EventRightLiquidated:
		title = fmt.Sprintf("Right #%d liquidated", ev.RightID)
	case domain.EventInsurancePayout:
		title = "Insurance payout"
	case domain.EventExposureNearLimit:
		title = "Exposure near limit"
	default:
		title = string(ev.Type)
	}

	var b strings.Builder
	if ev.RightID != 0 {
		fmt.Fprintf(&b, "right: %d\n", ev.RightID)
	}
	if ev.Amount != 0 {
		fmt.Fprintf(&b, "amount: %s\n", ev.Amount)
	}
	if ev.Actor != (common.Address{}) {
		fmt.Fprintf(&b, "actor: %s\n", ev.Actor.Hex())
	}
	for _, k := range slices.Sorted(maps.Keys(ev.Detail)) {
		fmt.Fprintf(&b, "%s: %v\n", k, ev.Detail[k])
	}
	fmt.Fprintf(&b, "at: %s", ev.At.UTC().Format("2006-01-02 15:04:05Z"))
	return title, b.String()
}
