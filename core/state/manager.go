package state

import (
	"errors"
	"fmt"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"tipjar/storage"
)

// ErrTxClosed is returned when a committed or discarded transaction is used.
var ErrTxClosed = errors.New("state: transaction closed")

// Manager hands out transactional views over the backing database. Writes made
// through a Tx stay in its overlay until Commit flushes them in one batch.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Database exposes the backing store.
func (m *Manager) Database() storage.Database { return m.db }

// Begin opens a new transaction.
func (m *Manager) Begin() *Tx {
	return &Tx{db: m.db, overlay: make(map[string][]byte)}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// Tx is a write-buffering view of the state. Reads observe the transaction's
// own writes first. A Tx is not safe for concurrent use.
type Tx struct {
	db      storage.Database
	overlay map[string][]byte
	closed  bool
}

func (tx *Tx) get(key []byte) ([]byte, error) {
	if tx.closed {
		return nil, ErrTxClosed
	}
	hashed := kvKey(key)
	if value, ok := tx.overlay[string(hashed)]; ok {
		return value, nil
	}
	value, err := tx.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return value, err
}

func (tx *Tx) put(key []byte, value []byte) error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.overlay[string(kvKey(key))] = value
	return nil
}

// KVPut RLP encodes value under key.
func (tx *Tx) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return tx.put(key, encoded)
}

// KVGet decodes the value stored under key into out. It reports false when the
// key holds no value.
func (tx *Tx) KVGet(key []byte, out interface{}) (bool, error) {
	data, err := tx.get(key)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// Pending returns the number of buffered writes.
func (tx *Tx) Pending() int { return len(tx.overlay) }

// Commit writes every buffered value to the database atomically and closes the
// transaction.
func (tx *Tx) Commit() error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.closed = true
	if len(tx.overlay) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tx.overlay))
	for key := range tx.overlay {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	batch := tx.db.NewBatch()
	for _, key := range keys {
		batch.Put([]byte(key), tx.overlay[key])
	}
	tx.overlay = nil
	if err := batch.Write(); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	return nil
}

// Discard drops every buffered write. It is safe to call after Commit.
func (tx *Tx) Discard() {
	tx.closed = true
	tx.overlay = nil
}
