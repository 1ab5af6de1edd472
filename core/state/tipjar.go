package state

import (
	"fmt"
	"math/big"

	"tipjar/native/tipjar"
)

type storedCreator struct {
	DisplayName   string
	RegisteredAt  uint64
	TotalReceived *big.Int
	TipCount      uint64
}

type storedTip struct {
	ID              uint64
	Tipper          [20]byte
	Recipient       [20]byte
	Amount          *big.Int
	HasMessage      bool
	Message         string
	Timestamp       uint64
	CreatedAtHeight uint64
}

type storedTipperStats struct {
	Recipient   [20]byte
	Tipper      [20]byte
	TotalTipped *big.Int
	TipCount    uint64
	LastTipAt   uint64
}

type storedGlobals struct {
	TipCounter  uint64
	TotalTips   uint64
	TotalVolume *big.Int
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func checkAmount(field string, v *big.Int) error {
	if v != nil && v.Sign() < 0 {
		return fmt.Errorf("state: negative %s", field)
	}
	return nil
}

// TipjarCreatorGet loads the profile registered by account.
func (tx *Tx) TipjarCreatorGet(account [20]byte) (*tipjar.CreatorProfile, bool, error) {
	var stored storedCreator
	ok, err := tx.KVGet(TipjarCreatorKey(account), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &tipjar.CreatorProfile{
		DisplayName:   stored.DisplayName,
		RegisteredAt:  stored.RegisteredAt,
		TotalReceived: nonNil(stored.TotalReceived),
		TipCount:      stored.TipCount,
	}, true, nil
}

// TipjarCreatorPut stores the profile of account.
func (tx *Tx) TipjarCreatorPut(account [20]byte, profile *tipjar.CreatorProfile) error {
	if profile == nil {
		return fmt.Errorf("state: nil creator profile")
	}
	if err := checkAmount("total received", profile.TotalReceived); err != nil {
		return err
	}
	return tx.KVPut(TipjarCreatorKey(account), &storedCreator{
		DisplayName:   profile.DisplayName,
		RegisteredAt:  profile.RegisteredAt,
		TotalReceived: nonNil(profile.TotalReceived),
		TipCount:      profile.TipCount,
	})
}

// TipjarTipGet loads the tip with the given id.
func (tx *Tx) TipjarTipGet(id uint64) (*tipjar.TipRecord, bool, error) {
	var stored storedTip
	ok, err := tx.KVGet(TipjarTipKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	tip := &tipjar.TipRecord{
		ID:              stored.ID,
		Tipper:          stored.Tipper,
		Recipient:       stored.Recipient,
		Amount:          nonNil(stored.Amount),
		Timestamp:       stored.Timestamp,
		CreatedAtHeight: stored.CreatedAtHeight,
	}
	if stored.HasMessage {
		msg := stored.Message
		tip.Message = &msg
	}
	return tip, true, nil
}

// TipjarTipPut stores a tip under its id.
func (tx *Tx) TipjarTipPut(tip *tipjar.TipRecord) error {
	if tip == nil {
		return fmt.Errorf("state: nil tip")
	}
	if err := checkAmount("tip amount", tip.Amount); err != nil {
		return err
	}
	stored := &storedTip{
		ID:              tip.ID,
		Tipper:          tip.Tipper,
		Recipient:       tip.Recipient,
		Amount:          nonNil(tip.Amount),
		Timestamp:       tip.Timestamp,
		CreatedAtHeight: tip.CreatedAtHeight,
	}
	if tip.Message != nil {
		stored.HasMessage = true
		stored.Message = *tip.Message
	}
	return tx.KVPut(TipjarTipKey(tip.ID), stored)
}

// TipjarTipIndexLen returns how many tips recipient has received.
func (tx *Tx) TipjarTipIndexLen(recipient [20]byte) (uint64, error) {
	var length uint64
	if _, err := tx.KVGet(TipjarTipIndexLenKey(recipient), &length); err != nil {
		return 0, err
	}
	return length, nil
}

// TipjarTipIndexAt returns the tip id at position in recipient's index.
func (tx *Tx) TipjarTipIndexAt(recipient [20]byte, position uint64) (uint64, bool, error) {
	var id uint64
	ok, err := tx.KVGet(TipjarTipIndexKey(recipient, position), &id)
	if err != nil || !ok {
		return 0, false, err
	}
	return id, true, nil
}

// TipjarTipIndexAppend adds id to the end of recipient's index.
func (tx *Tx) TipjarTipIndexAppend(recipient [20]byte, id uint64) error {
	length, err := tx.TipjarTipIndexLen(recipient)
	if err != nil {
		return err
	}
	if err := tx.KVPut(TipjarTipIndexKey(recipient, length), id); err != nil {
		return err
	}
	return tx.KVPut(TipjarTipIndexLenKey(recipient), length+1)
}

// TipjarTipperStatsGet loads the aggregate of tips from tipper to recipient.
func (tx *Tx) TipjarTipperStatsGet(recipient [20]byte, tipper [20]byte) (*tipjar.TipperStats, bool, error) {
	var stored storedTipperStats
	ok, err := tx.KVGet(TipjarTipperStatsKey(recipient, tipper), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &tipjar.TipperStats{
		Recipient:   stored.Recipient,
		Tipper:      stored.Tipper,
		TotalTipped: nonNil(stored.TotalTipped),
		TipCount:    stored.TipCount,
		LastTipAt:   stored.LastTipAt,
	}, true, nil
}

// TipjarTipperStatsPut stores a (recipient, tipper) aggregate.
func (tx *Tx) TipjarTipperStatsPut(stats *tipjar.TipperStats) error {
	if stats == nil {
		return fmt.Errorf("state: nil tipper stats")
	}
	if err := checkAmount("total tipped", stats.TotalTipped); err != nil {
		return err
	}
	return tx.KVPut(TipjarTipperStatsKey(stats.Recipient, stats.Tipper), &storedTipperStats{
		Recipient:   stats.Recipient,
		Tipper:      stats.Tipper,
		TotalTipped: nonNil(stats.TotalTipped),
		TipCount:    stats.TipCount,
		LastTipAt:   stats.LastTipAt,
	})
}

// TipjarGlobalsGet loads the ledger-wide counters. A fresh ledger reports zero
// values.
func (tx *Tx) TipjarGlobalsGet() (*tipjar.Globals, error) {
	var stored storedGlobals
	ok, err := tx.KVGet(TipjarGlobalsKey(), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &tipjar.Globals{TotalVolume: big.NewInt(0)}, nil
	}
	return &tipjar.Globals{
		TipCounter:  stored.TipCounter,
		TotalTips:   stored.TotalTips,
		TotalVolume: nonNil(stored.TotalVolume),
	}, nil
}

// TipjarGlobalsPut stores the ledger-wide counters.
func (tx *Tx) TipjarGlobalsPut(globals *tipjar.Globals) error {
	if globals == nil {
		return fmt.Errorf("state: nil globals")
	}
	if err := checkAmount("total volume", globals.TotalVolume); err != nil {
		return err
	}
	return tx.KVPut(TipjarGlobalsKey(), &storedGlobals{
		TipCounter:  globals.TipCounter,
		TotalTips:   globals.TotalTips,
		TotalVolume: nonNil(globals.TotalVolume),
	})
}
