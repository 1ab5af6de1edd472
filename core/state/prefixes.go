package state

import "encoding/binary"

var (
	tipjarCreatorPrefix   = []byte("tipjar/creator/")
	tipjarTipPrefix       = []byte("tipjar/tip/")
	tipjarIndexLenPrefix  = []byte("tipjar/index/len/")
	tipjarIndexPrefix     = []byte("tipjar/index/")
	tipjarTipperPrefix    = []byte("tipjar/tipper/")
	tipjarGlobalsKeyBytes = []byte("tipjar/globals")
	ledgerHeightKeyBytes  = []byte("tipjar/height")
	bankBalancePrefix     = []byte("bank/balance/")
	bankGenesisAppliedKey = []byte("bank/genesis-applied")
)

func join(parts ...[]byte) []byte {
	size := 0
	for _, p := range parts {
		size += len(p)
	}
	buf := make([]byte, 0, size)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return buf
}

func be64(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

// TipjarCreatorKey returns the storage key of a creator profile.
func TipjarCreatorKey(account [20]byte) []byte {
	return join(tipjarCreatorPrefix, account[:])
}

// TipjarTipKey returns the storage key of a tip record.
func TipjarTipKey(id uint64) []byte {
	return join(tipjarTipPrefix, be64(id))
}

// TipjarTipIndexLenKey returns the key holding the length of a recipient's tip index.
func TipjarTipIndexLenKey(recipient [20]byte) []byte {
	return join(tipjarIndexLenPrefix, recipient[:])
}

// TipjarTipIndexKey returns the key of one position in a recipient's tip index.
func TipjarTipIndexKey(recipient [20]byte, position uint64) []byte {
	return join(tipjarIndexPrefix, recipient[:], be64(position))
}

// TipjarTipperStatsKey returns the key of a (recipient, tipper) aggregate.
func TipjarTipperStatsKey(recipient, tipper [20]byte) []byte {
	return join(tipjarTipperPrefix, recipient[:], tipper[:])
}

// TipjarGlobalsKey returns the key of the ledger-wide counters.
func TipjarGlobalsKey() []byte { return append([]byte(nil), tipjarGlobalsKeyBytes...) }

// LedgerHeightKey returns the key of the persisted ledger height.
func LedgerHeightKey() []byte { return append([]byte(nil), ledgerHeightKeyBytes...) }

// BankBalanceKey returns the key of an account balance.
func BankBalanceKey(account [20]byte) []byte {
	return join(bankBalancePrefix, account[:])
}
