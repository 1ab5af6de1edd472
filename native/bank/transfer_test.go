package bank

import (
	"errors"
	"math/big"
	"testing"
)

type memBalances map[[20]byte]*big.Int

func (m memBalances) BalanceGet(account [20]byte) (*big.Int, error) {
	if v, ok := m[account]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (m memBalances) BalancePut(account [20]byte, amount *big.Int) error {
	m[account] = new(big.Int).Set(amount)
	return nil
}

var (
	alice = [20]byte{1}
	bob   = [20]byte{2}
)

func TestTransferMovesFunds(t *testing.T) {
	balances := memBalances{alice: big.NewInt(100_000)}
	ledger := NewLedger(balances)
	if err := ledger.Transfer(big.NewInt(40_000), alice, bob); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if balances[alice].Int64() != 60_000 || balances[bob].Int64() != 40_000 {
		t.Fatalf("unexpected balances alice=%s bob=%s", balances[alice], balances[bob])
	}
}

func TestTransferInsufficientFundsLeavesBalances(t *testing.T) {
	balances := memBalances{alice: big.NewInt(5)}
	ledger := NewLedger(balances)
	err := ledger.Transfer(big.NewInt(10), alice, bob)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if balances[alice].Int64() != 5 {
		t.Fatalf("sender balance changed")
	}
	if _, ok := balances[bob]; ok {
		t.Fatalf("recipient credited on failed transfer")
	}
}

func TestTransferRejectsInvalidAmounts(t *testing.T) {
	ledger := NewLedger(memBalances{alice: big.NewInt(5)})
	for _, amount := range []*big.Int{nil, big.NewInt(0), big.NewInt(-1)} {
		if err := ledger.Transfer(amount, alice, bob); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %v: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestCreditAccumulates(t *testing.T) {
	balances := memBalances{}
	ledger := NewLedger(balances)
	for i := 0; i < 3; i++ {
		if err := ledger.Credit(bob, big.NewInt(1_000)); err != nil {
			t.Fatalf("credit: %v", err)
		}
	}
	balance, _ := ledger.Balance(bob)
	if balance.Int64() != 3_000 {
		t.Fatalf("expected 3000, got %s", balance)
	}
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	if err := ledger.Credit(bob, max); err == nil {
		t.Fatalf("expected overflow error")
	}
}
