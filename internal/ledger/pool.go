package ledger

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ertledger/internal/domain"
	"github.com/alanyoungcy/ertledger/internal/fixedpoint"
)

// capitalPool keeps the LP share accounting and the allocated/available
// split of pool capital.
type capitalPool struct {
	util utilizationController
}

// previewDeposit prices new shares against the pool. A pool with shares
// outstanding and no assets takes no deposits.
func (capitalPool) previewDeposit(v domain.VaultState, amount domain.Amount) (domain.Amount, error) {
	if v.TotalShares == 0 {
		return amount, nil
	}
	if v.TotalAssets <= 0 {
		return 0, domain.ErrPoolInsolvent
	}
	return fixedpoint.MulDiv(amount, int64(v.TotalShares), int64(v.TotalAssets))
}

func (capitalPool) previewWithdraw(v domain.VaultState, shares domain.Amount) (domain.Amount, error) {
	if v.TotalShares <= 0 || v.TotalAssets <= 0 {
		return 0, nil
	}
	return fixedpoint.MulDiv(shares, int64(v.TotalAssets), int64(v.TotalShares))
}

func (p capitalPool) deposit(tx *Tx, lp common.Address, amount domain.Amount) (domain.Amount, error) {
	if lp == (common.Address{}) {
		return 0, domain.ErrZeroAddress
	}
	if amount <= 0 {
		return 0, domain.ErrZeroAmount
	}
	if tx.Controls().Paused {
		return 0, domain.ErrPaused
	}
	v := tx.Vault()
	shares, err := p.previewDeposit(v, amount)
	if err != nil {
		return 0, err
	}
	if shares == 0 {
		return 0, domain.ErrZeroAmount
	}
	if v.TotalAssets, err = fixedpoint.Add(v.TotalAssets, amount); err != nil {
		return 0, err
	}
	if v.TotalShares, err = fixedpoint.Add(v.TotalShares, shares); err != nil {
		return 0, err
	}
	held, err := fixedpoint.Add(tx.Shares(lp), shares)
	if err != nil {
		return 0, err
	}
	tx.SetVault(v)
	tx.SetShares(lp, held)
	tx.Emit(domain.EventDeposit, 0, lp, amount, map[string]any{"shares": shares})
	return shares, nil
}

func (p capitalPool) withdraw(tx *Tx, lp common.Address, shares domain.Amount) (domain.Amount, error) {
	if lp == (common.Address{}) {
		return 0, domain.ErrZeroAddress
	}
	if shares <= 0 {
		return 0, domain.ErrZeroAmount
	}
	held := tx.Shares(lp)
	if held < shares {
		return 0, domain.ErrInsufficientShares
	}
	v := tx.Vault()
	amount, err := p.previewWithdraw(v, shares)
	if err != nil {
		return 0, err
	}
	if amount > v.Available() {
		return 0, domain.ErrInsufficientLiquidity
	}
	v.TotalAssets -= amount
	v.TotalShares -= shares
	tx.SetVault(v)
	tx.SetShares(lp, held-shares)
	tx.Emit(domain.EventWithdraw, 0, lp, amount, map[string]any{"shares": shares})
	return amount, nil
}

// allocate reserves amount of available capital for a right.
func (p capitalPool) allocate(tx *Tx, amount domain.Amount) error {
	v := tx.Vault()
	if amount > v.Available() {
		return domain.ErrInsufficientLiquidity
	}
	if !p.util.canAllocate(v, amount) {
		return domain.ErrUtilizationExceeded
	}
	v.AllocatedCapital += amount
	tx.SetVault(v)
	return nil
}

// release returns a right's principal allocation to the pool. returned is
// what actually comes back; the difference from principal is the pool's
// gain or loss on the right.
func (capitalPool) release(tx *Tx, principal, returned domain.Amount) error {
	v := tx.Vault()
	if principal > v.AllocatedCapital {
		principal = v.AllocatedCapital
	}
	delta, err := fixedpoint.Sub(returned, principal)
	if err != nil {
		return err
	}
	v.AllocatedCapital -= principal
	if v.TotalAssets, err = fixedpoint.Add(v.TotalAssets, delta); err != nil {
		return err
	}
	tx.SetVault(v)
	return nil
}

// Deposit adds amount to the pool for lp and returns the shares minted.
func (l *Ledger) Deposit(ctx context.Context, lp common.Address, amount domain.Amount) (domain.Amount, error) {
	var shares domain.Amount
	err := l.update(ctx, "deposit", func(tx *Tx) error {
		var err error
		shares, err = l.pool.deposit(tx, lp, amount)
		return err
	})
	if err != nil {
		return 0, err
	}
	l.logger.InfoContext(ctx, "ledger: deposit",
		slog.String("lp", lp.Hex()),
		slog.String("amount", amount.String()),
		slog.String("shares", shares.String()),
	)
	return shares, nil
}

// Withdraw burns shares held by lp and returns the amount paid out. Withdrawals
// remain open while the ledger is paused.
func (l *Ledger) Withdraw(ctx context.Context, lp common.Address, shares domain.Amount) (domain.Amount, error) {
	var amount domain.Amount
	err := l.update(ctx, "withdraw", func(tx *Tx) error {
		var err error
		amount, err = l.pool.withdraw(tx, lp, shares)
		return err
	})
	if err != nil {
		return 0, err
	}
	l.logger.InfoContext(ctx, "ledger: withdraw",
		slog.String("lp", lp.Hex()),
		slog.String("shares", shares.String()),
		slog.String("amount", amount.String()),
	)
	return amount, nil
}

// PoolState returns the current vault accounting.
func (l *Ledger) PoolState() domain.VaultState {
	var v domain.VaultState
	l.read(func(tx *Tx) { v = tx.Vault() })
	return v
}

// SharesOf returns the shares held by lp.
func (l *Ledger) SharesOf(lp common.Address) domain.Amount {
	var n domain.Amount
	l.read(func(tx *Tx) { n = tx.Shares(lp) })
	return n
}

// PreviewDeposit returns the shares a deposit of amount would mint now.
func (l *Ledger) PreviewDeposit(amount domain.Amount) (domain.Amount, error) {
	var shares domain.Amount
	err := l.view(func(tx *Tx) error {
		var err error
		shares, err = l.pool.previewDeposit(tx.Vault(), amount)
		return err
	})
	return shares, err
}

// PreviewWithdraw returns the amount burning shares would pay out now.
func (l *Ledger) PreviewWithdraw(shares domain.Amount) (domain.Amount, error) {
	var amount domain.Amount
	err := l.view(func(tx *Tx) error {
		var err error
		amount, err = l.pool.previewWithdraw(tx.Vault(), shares)
		return err
	})
	return amount, err
}
