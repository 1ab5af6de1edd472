package tipjar

import (
	"fmt"
	"math/big"
)

// Query exposes the read-only accessors of the ledger. None of its methods
// mutate state; absent records are reported through the boolean results.
type Query struct {
	state stateReader
}

// NewQuery wraps a state reader.
func NewQuery(state stateReader) *Query {
	return &Query{state: state}
}

// CreatorInfo returns the profile of account.
func (q *Query) CreatorInfo(account [20]byte) (*CreatorProfile, bool, error) {
	if q == nil || q.state == nil {
		return nil, false, errNilState
	}
	profile, ok, err := q.state.TipjarCreatorGet(account)
	if err != nil || !ok {
		return nil, false, err
	}
	return profile.Clone(), true, nil
}

// IsCreator reports whether account has registered.
func (q *Query) IsCreator(account [20]byte) (bool, error) {
	_, ok, err := q.CreatorInfo(account)
	return ok, err
}

// Tip returns the tip with the given id.
func (q *Query) Tip(id uint64) (*TipRecord, bool, error) {
	if q == nil || q.state == nil {
		return nil, false, errNilState
	}
	if id == 0 {
		return nil, false, nil
	}
	tip, ok, err := q.state.TipjarTipGet(id)
	if err != nil || !ok {
		return nil, false, err
	}
	return tip.Clone(), true, nil
}

// TipCounter returns the id of the most recent tip, 0 before the first one.
func (q *Query) TipCounter() (uint64, error) {
	globals, err := q.globals()
	if err != nil {
		return 0, err
	}
	return globals.TipCounter, nil
}

// PlatformStats returns the ledger-wide tip count and volume.
func (q *Query) PlatformStats() (PlatformStats, error) {
	globals, err := q.globals()
	if err != nil {
		return PlatformStats{TotalVolume: big.NewInt(0)}, err
	}
	return PlatformStats{TotalTips: globals.TotalTips, TotalVolume: newBigInt(globals.TotalVolume)}, nil
}

// TipperStats returns the aggregate of tips from tipper to recipient.
func (q *Query) TipperStats(recipient [20]byte, tipper [20]byte) (*TipperStats, bool, error) {
	if q == nil || q.state == nil {
		return nil, false, errNilState
	}
	stats, ok, err := q.state.TipjarTipperStatsGet(recipient, tipper)
	if err != nil || !ok {
		return nil, false, err
	}
	return stats.Clone(), true, nil
}

// CreatorTipIDs returns every tip id received by recipient in insertion order.
func (q *Query) CreatorTipIDs(recipient [20]byte) ([]uint64, error) {
	if q == nil || q.state == nil {
		return nil, errNilState
	}
	count, err := q.state.TipjarTipIndexLen(recipient)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, count)
	for pos := uint64(0); pos < count; pos++ {
		id, err := q.indexAt(recipient, pos)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// RecentTips returns up to limit of the newest tips received by recipient,
// newest first.
func (q *Query) RecentTips(recipient [20]byte, limit uint64) ([]*TipRecord, error) {
	if q == nil || q.state == nil {
		return nil, errNilState
	}
	count, err := q.state.TipjarTipIndexLen(recipient)
	if err != nil {
		return nil, err
	}
	if limit > count {
		limit = count
	}
	tips := make([]*TipRecord, 0, limit)
	for i := uint64(0); i < limit; i++ {
		id, err := q.indexAt(recipient, count-1-i)
		if err != nil {
			return nil, err
		}
		tip, ok, err := q.state.TipjarTipGet(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("tipjar: index references missing tip %d", id)
		}
		tips = append(tips, tip.Clone())
	}
	return tips, nil
}

func (q *Query) indexAt(recipient [20]byte, pos uint64) (uint64, error) {
	id, ok, err := q.state.TipjarTipIndexAt(recipient, pos)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("tipjar: tip index hole at position %d", pos)
	}
	return id, nil
}

func (q *Query) globals() (*Globals, error) {
	if q == nil || q.state == nil {
		return nil, errNilState
	}
	globals, err := q.state.TipjarGlobalsGet()
	if err != nil {
		return nil, err
	}
	if globals == nil {
		return &Globals{TotalVolume: big.NewInt(0)}, nil
	}
	return globals, nil
}
