package state

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// BalanceGet returns the spendable balance of account. Unknown accounts hold
// zero.
func (tx *Tx) BalanceGet(account [20]byte) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := tx.KVGet(BankBalanceKey(account), amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

// BalancePut overwrites the balance of account. Balances must fit in 256 bits.
func (tx *Tx) BalancePut(account [20]byte, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: negative balance")
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return fmt.Errorf("state: balance exceeds 256 bits")
	}
	return tx.KVPut(BankBalanceKey(account), amount)
}

// HeightGet returns the persisted ledger height, 0 when none was stored.
func (tx *Tx) HeightGet() (uint64, error) {
	var height uint64
	if _, err := tx.KVGet(LedgerHeightKey(), &height); err != nil {
		return 0, err
	}
	return height, nil
}

// HeightPut persists the ledger height.
func (tx *Tx) HeightPut(height uint64) error {
	return tx.KVPut(LedgerHeightKey(), height)
}

// GenesisApplied reports whether the genesis allocation was already credited.
func (tx *Tx) GenesisApplied() (bool, error) {
	var applied bool
	return tx.KVGet(bankGenesisAppliedKey, &applied)
}

// MarkGenesisApplied records that the genesis allocation was credited.
func (tx *Tx) MarkGenesisApplied() error {
	return tx.KVPut(bankGenesisAppliedKey, true)
}
