package tipjar

import "math/big"

const (
	// MinTipAmount is the smallest accepted tip in base token units.
	MinTipAmount = 10_000
	// MaxTipAmount is the largest accepted tip in base token units.
	MaxTipAmount = 1_000_000_000
	// MaxDisplayNameLength bounds display names, counted in Unicode scalar values.
	MaxDisplayNameLength = 50
	// MaxMessageLength bounds tip messages, counted in Unicode scalar values.
	MaxMessageLength = 280
)

// MinTip returns MinTipAmount as a fresh big integer.
func MinTip() *big.Int { return big.NewInt(MinTipAmount) }

// MaxTip returns MaxTipAmount as a fresh big integer.
func MaxTip() *big.Int { return big.NewInt(MaxTipAmount) }

// CreatorProfile is the public profile of an account that accepts tips.
type CreatorProfile struct {
	DisplayName   string   `json:"displayName"`
	RegisteredAt  uint64   `json:"registeredAt"`
	TotalReceived *big.Int `json:"totalReceived"`
	TipCount      uint64   `json:"tipCount"`
}

// Clone returns a deep copy of the profile.
func (p *CreatorProfile) Clone() *CreatorProfile {
	if p == nil {
		return nil
	}
	clone := *p
	clone.TotalReceived = newBigInt(p.TotalReceived)
	return &clone
}

// TipRecord is an immutable entry of the tip log.
type TipRecord struct {
	ID              uint64   `json:"id"`
	Tipper          [20]byte `json:"tipper"`
	Recipient       [20]byte `json:"recipient"`
	Amount          *big.Int `json:"amount"`
	Message         *string  `json:"message,omitempty"`
	Timestamp       uint64   `json:"timestamp"`
	CreatedAtHeight uint64   `json:"createdAtHeight"`
}

// Clone returns a deep copy of the tip.
func (t *TipRecord) Clone() *TipRecord {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Amount = newBigInt(t.Amount)
	if t.Message != nil {
		msg := *t.Message
		clone.Message = &msg
	}
	return &clone
}

// TipperStats aggregates the tips one tipper has sent to one recipient.
type TipperStats struct {
	Recipient   [20]byte `json:"recipient"`
	Tipper      [20]byte `json:"tipper"`
	TotalTipped *big.Int `json:"totalTipped"`
	TipCount    uint64   `json:"tipCount"`
	LastTipAt   uint64   `json:"lastTipAt"`
}

// Clone returns a deep copy of the stats.
func (s *TipperStats) Clone() *TipperStats {
	if s == nil {
		return nil
	}
	clone := *s
	clone.TotalTipped = newBigInt(s.TotalTipped)
	return &clone
}

// Globals holds the ledger-wide counters. TipCounter is the last assigned tip id.
type Globals struct {
	TipCounter  uint64   `json:"tipCounter"`
	TotalTips   uint64   `json:"totalTips"`
	TotalVolume *big.Int `json:"totalVolume"`
}

// Clone returns a deep copy of the counters.
func (g *Globals) Clone() *Globals {
	if g == nil {
		return nil
	}
	clone := *g
	clone.TotalVolume = newBigInt(g.TotalVolume)
	return &clone
}

// PlatformStats is the public view of the global totals.
type PlatformStats struct {
	TotalTips   uint64   `json:"totalTips"`
	TotalVolume *big.Int `json:"totalVolume"`
}

func newBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
