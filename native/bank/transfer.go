package bank

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	// ErrInsufficientFunds is returned when the sender cannot cover a transfer.
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	// ErrInvalidAmount is returned for nil, zero or negative amounts.
	ErrInvalidAmount = errors.New("bank: amount must be positive")
)

type balanceState interface {
	BalanceGet(account [20]byte) (*big.Int, error)
	BalancePut(account [20]byte, amount *big.Int) error
}

// Ledger moves native token balances held in state. Callers supply a
// transactional state so a failed operation can be discarded as a whole.
type Ledger struct {
	state balanceState
}

// NewLedger wraps the supplied balance state.
func NewLedger(state balanceState) *Ledger {
	return &Ledger{state: state}
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return fmt.Errorf("%w: exceeds 256 bits", ErrInvalidAmount)
	}
	return nil
}

// Balance returns the balance of account.
func (l *Ledger) Balance(account [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, fmt.Errorf("bank: state required")
	}
	return l.state.BalanceGet(account)
}

// Transfer debits from and credits to. Nothing is written when the sender's
// balance is too low.
func (l *Ledger) Transfer(amount *big.Int, from [20]byte, to [20]byte) error {
	if l == nil || l.state == nil {
		return fmt.Errorf("bank: state required")
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	fromBalance, err := l.state.BalanceGet(from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, fromBalance, amount)
	}
	if from == to {
		return nil
	}
	toBalance, err := l.state.BalanceGet(to)
	if err != nil {
		return err
	}
	credited, overflow := uint256.FromBig(new(big.Int).Add(toBalance, amount))
	if overflow {
		return fmt.Errorf("bank: recipient balance overflow")
	}
	if err := l.state.BalancePut(from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return l.state.BalancePut(to, credited.ToBig())
}

// Credit mints amount into account. It backs genesis allocations and the
// development faucet.
func (l *Ledger) Credit(account [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return fmt.Errorf("bank: state required")
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	balance, err := l.state.BalanceGet(account)
	if err != nil {
		return err
	}
	updated, overflow := uint256.FromBig(new(big.Int).Add(balance, amount))
	if overflow {
		return fmt.Errorf("bank: balance overflow")
	}
	return l.state.BalancePut(account, updated.ToBig())
}
