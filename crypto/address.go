package crypto

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the human-readable part of an encoded address.
type AddressPrefix string

const (
	// TipjarPrefix is the prefix used for every ledger account.
	TipjarPrefix AddressPrefix = "tj"

	addressLength = 20
)

// Address represents a 20-byte account identifier with a specific prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

// NewAddress validates the length of b and wraps it with prefix.
func NewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != addressLength {
		return Address{}, fmt.Errorf("address must be %d bytes long, got %d", addressLength, len(b))
	}
	return Address{prefix: prefix, bytes: append([]byte(nil), b...)}, nil
}

// MustNewAddress is NewAddress for inputs that are known to be valid.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	addr, err := NewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return append([]byte(nil), a.bytes...)
}

// Array returns the address as the fixed-size form used by ledger state.
func (a Address) Array() [20]byte {
	var out [20]byte
	copy(out[:], a.bytes)
	return out
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// Equal reports whether both addresses carry the same prefix and bytes.
func (a Address) Equal(other Address) bool {
	return a.prefix == other.prefix && bytes.Equal(a.bytes, other.bytes)
}

// DecodeAddress parses a bech32 encoded address of any prefix.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(strings.TrimSpace(addrStr))
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return NewAddress(AddressPrefix(prefix), conv)
}

// ParseAccount decodes a ledger account and rejects foreign prefixes.
func ParseAccount(addrStr string) ([20]byte, error) {
	addr, err := DecodeAddress(addrStr)
	if err != nil {
		return [20]byte{}, err
	}
	if addr.Prefix() != TipjarPrefix {
		return [20]byte{}, fmt.Errorf("unexpected address prefix %q", addr.Prefix())
	}
	return addr.Array(), nil
}

// FormatAccount encodes a raw ledger account with the ledger prefix.
func FormatAccount(account [20]byte) string {
	return MustNewAddress(TipjarPrefix, account[:]).String()
}

// DeriveAccount derives a deterministic account from a label. It is meant for
// development networks and tests where accounts are referred to by name.
func DeriveAccount(label string) [20]byte {
	digest := ethcrypto.Keccak256([]byte("tipjar-account:" + label))
	var out [20]byte
	copy(out[:], digest[len(digest)-addressLength:])
	return out
}
