package rpc

import (
	"encoding/hex"
	"math/big"

	"tipjar/crypto"
	"tipjar/native/tipjar"
)

// CreatorResult is the wire form of a creator profile.
type CreatorResult struct {
	Address       string `json:"address"`
	DisplayName   string `json:"displayName"`
	RegisteredAt  uint64 `json:"registeredAt"`
	TotalReceived string `json:"totalReceived"`
	TipCount      uint64 `json:"tipCount"`
}

// TipResult is the wire form of a tip record.
type TipResult struct {
	ID              uint64  `json:"id"`
	Tipper          string  `json:"tipper"`
	Recipient       string  `json:"recipient"`
	Amount          string  `json:"amount"`
	Message         *string `json:"message"`
	Timestamp       uint64  `json:"timestamp"`
	CreatedAtHeight uint64  `json:"createdAtHeight"`
	Receipt         string  `json:"receipt"`
}

// TipperStatsResult is the wire form of a (recipient, tipper) aggregate.
type TipperStatsResult struct {
	Creator     string `json:"creator"`
	Tipper      string `json:"tipper"`
	TotalTipped string `json:"totalTipped"`
	TipCount    uint64 `json:"tipCount"`
	LastTipAt   uint64 `json:"lastTipAt"`
}

// PlatformStatsResult is the wire form of the global totals.
type PlatformStatsResult struct {
	TotalTips   uint64 `json:"totalTips"`
	TotalVolume string `json:"totalVolume"`
}

// BalanceResult reports an account balance.
type BalanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// SendTipResult acknowledges an accepted tip.
type SendTipResult struct {
	ID uint64 `json:"id"`
}

// StatusResult reports the node's ledger position.
type StatusResult struct {
	Height     uint64 `json:"height"`
	TipCounter uint64 `json:"tipCounter"`
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// FormatCreator converts a profile to its wire form.
func FormatCreator(account [20]byte, profile *tipjar.CreatorProfile) *CreatorResult {
	if profile == nil {
		return nil
	}
	return &CreatorResult{
		Address:       crypto.FormatAccount(account),
		DisplayName:   profile.DisplayName,
		RegisteredAt:  profile.RegisteredAt,
		TotalReceived: bigString(profile.TotalReceived),
		TipCount:      profile.TipCount,
	}
}

// FormatTip converts a tip to its wire form.
func FormatTip(tip *tipjar.TipRecord) *TipResult {
	if tip == nil {
		return nil
	}
	receipt := tip.ReceiptHash()
	out := &TipResult{
		ID:              tip.ID,
		Tipper:          crypto.FormatAccount(tip.Tipper),
		Recipient:       crypto.FormatAccount(tip.Recipient),
		Amount:          bigString(tip.Amount),
		Timestamp:       tip.Timestamp,
		CreatedAtHeight: tip.CreatedAtHeight,
		Receipt:         hex.EncodeToString(receipt[:]),
	}
	if tip.Message != nil {
		msg := *tip.Message
		out.Message = &msg
	}
	return out
}

// FormatTips converts a slice of tips, never returning nil.
func FormatTips(tips []*tipjar.TipRecord) []*TipResult {
	out := make([]*TipResult, 0, len(tips))
	for _, tip := range tips {
		out = append(out, FormatTip(tip))
	}
	return out
}

// FormatTipperStats converts an aggregate to its wire form.
func FormatTipperStats(stats *tipjar.TipperStats) *TipperStatsResult {
	if stats == nil {
		return nil
	}
	return &TipperStatsResult{
		Creator:     crypto.FormatAccount(stats.Recipient),
		Tipper:      crypto.FormatAccount(stats.Tipper),
		TotalTipped: bigString(stats.TotalTipped),
		TipCount:    stats.TipCount,
		LastTipAt:   stats.LastTipAt,
	}
}

// FormatPlatformStats converts the global totals to their wire form.
func FormatPlatformStats(stats tipjar.PlatformStats) PlatformStatsResult {
	return PlatformStatsResult{TotalTips: stats.TotalTips, TotalVolume: bigString(stats.TotalVolume)}
}
