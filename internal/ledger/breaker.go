package ledger

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ertledger/internal/domain"
	"github.com/alanyoungcy/ertledger/internal/fixedpoint"
)

// circuitBreaker accumulates realized losses over a rolling window. Once
// tripped it stays tripped until an admin reset.
type circuitBreaker struct {
	window time.Duration
}

func (b circuitBreaker) roll(s domain.BreakerState, now time.Time) domain.BreakerState {
	if s.WindowStart.IsZero() || now.Sub(s.WindowStart) >= b.window {
		s.WindowStart = now
		s.WindowLoss = 0
	}
	return s
}

func (b circuitBreaker) recordLoss(tx *Tx, rightID uint64, amount domain.Amount) error {
	if amount <= 0 {
		return nil
	}
	s := b.roll(tx.Breaker(), tx.Now())
	var err error
	if s.WindowLoss, err = fixedpoint.Add(s.WindowLoss, amount); err != nil {
		return err
	}
	if !s.Tripped && s.Threshold > 0 && s.WindowLoss >= s.Threshold {
		now := tx.Now()
		s.Tripped = true
		s.TrippedAt = &now
		tx.Emit(domain.EventBreakerTripped, rightID, common.Address{}, s.WindowLoss, map[string]any{
			"threshold": s.Threshold,
		})
	}
	tx.SetBreaker(s)
	return nil
}

func (b circuitBreaker) reset(tx *Tx, caller common.Address) {
	s := tx.Breaker()
	s.WindowStart = tx.Now()
	s.WindowLoss = 0
	s.Tripped = false
	s.TrippedAt = nil
	tx.SetBreaker(s)
	tx.Emit(domain.EventBreakerReset, 0, caller, 0, nil)
}

// IsTripped reports whether new allocations are halted.
func (l *Ledger) IsTripped() bool {
	return l.BreakerState().Tripped
}

// BreakerState returns the breaker window as seen now: an elapsed window
// reports zero loss.
func (l *Ledger) BreakerState() domain.BreakerState {
	var s domain.BreakerState
	l.read(func(tx *Tx) { s = l.breaker.roll(tx.Breaker(), tx.Now()) })
	return s
}
