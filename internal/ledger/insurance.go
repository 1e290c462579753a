package ledger

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ertledger/internal/domain"
	"github.com/alanyoungcy/ertledger/internal/fixedpoint"
)

// insuranceFund holds the settlement skim. Payouts never exceed the balance.
type insuranceFund struct{}

func (insuranceFund) deposit(tx *Tx, rightID uint64, from common.Address, amount domain.Amount) error {
	if amount <= 0 {
		return nil
	}
	s := tx.Insurance()
	var err error
	if s.Balance, err = fixedpoint.Add(s.Balance, amount); err != nil {
		return err
	}
	if s.TotalCollected, err = fixedpoint.Add(s.TotalCollected, amount); err != nil {
		return err
	}
	tx.SetInsurance(s)
	tx.Emit(domain.EventInsuranceDeposit, rightID, from, amount, nil)
	return nil
}

func (insuranceFund) payout(tx *Tx, to common.Address, amount domain.Amount) domain.Amount {
	s := tx.Insurance()
	paid := min(amount, s.Balance)
	if paid <= 0 {
		return 0
	}
	s.Balance -= paid
	s.TotalPaidOut += paid
	tx.SetInsurance(s)
	tx.Emit(domain.EventInsurancePayout, 0, to, paid, map[string]any{"requested": amount})
	return paid
}

// InsuranceState returns the fund balance and counters.
func (l *Ledger) InsuranceState() domain.InsuranceState {
	var s domain.InsuranceState
	l.read(func(tx *Tx) { s = tx.Insurance() })
	return s
}

// IsFunded reports whether the fund balance has reached its target.
func (l *Ledger) IsFunded() bool {
	return l.InsuranceState().IsFunded()
}
