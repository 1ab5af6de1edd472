package core

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"tipjar/core/events"
	ledgerstate "tipjar/core/state"
	"tipjar/native/bank"
	"tipjar/native/tipjar"
	"tipjar/observability"
	"tipjar/storage"
)

// ErrFaucetDisabled is returned by Faucet when the node was started without a
// faucet allowance.
var ErrFaucetDisabled = errors.New("core: faucet disabled")

// Options configures a Node.
type Options struct {
	// Emitter receives committed events. Defaults to a no-op emitter.
	Emitter events.Emitter
	// Genesis balances are credited once, the first time the store is opened.
	Genesis map[[20]byte]*big.Int
	// FaucetAmount enables Faucet when positive.
	FaucetAmount *big.Int
	Logger       *slog.Logger
}

// Node is the central controller. It owns the store, serializes every
// mutation and commits each one as a single batch.
type Node struct {
	mu      sync.RWMutex
	manager *ledgerstate.Manager
	height  uint64
	emitter events.Emitter
	faucet  *big.Int
	logger  *slog.Logger
	metrics *observability.LedgerMetrics
}

// NewNode opens the ledger stored in db. A fresh store starts at height 1.
func NewNode(db storage.Database, opts Options) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	n := &Node{
		manager: ledgerstate.NewManager(db),
		logger:  logger.With("component", "node"),
		metrics: observability.Ledger(),
	}
	n.SetEmitter(opts.Emitter)
	if opts.FaucetAmount != nil && opts.FaucetAmount.Sign() > 0 {
		n.faucet = new(big.Int).Set(opts.FaucetAmount)
	}

	tx := n.manager.Begin()
	height, err := tx.HeightGet()
	if err != nil {
		tx.Discard()
		return nil, fmt.Errorf("load height: %w", err)
	}
	if height == 0 {
		height = 1
		if err := tx.HeightPut(height); err != nil {
			tx.Discard()
			return nil, err
		}
	}
	if err := applyGenesis(tx, opts.Genesis); err != nil {
		tx.Discard()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	n.height = height
	n.metrics.SetHeight(height)
	n.logger.Info("ledger opened", slog.Uint64("height", height))
	return n, nil
}

func applyGenesis(tx *ledgerstate.Tx, genesis map[[20]byte]*big.Int) error {
	applied, err := tx.GenesisApplied()
	if err != nil {
		return fmt.Errorf("load genesis flag: %w", err)
	}
	if applied {
		return nil
	}
	ledger := bank.NewLedger(tx)
	for account, amount := range genesis {
		if amount == nil || amount.Sign() == 0 {
			continue
		}
		if err := ledger.Credit(account, amount); err != nil {
			return fmt.Errorf("genesis credit: %w", err)
		}
	}
	return tx.MarkGenesisApplied()
}

// SetEmitter replaces the downstream event emitter.
func (n *Node) SetEmitter(emitter events.Emitter) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if emitter == nil {
		n.emitter = events.NoopEmitter{}
		return
	}
	n.emitter = emitter
}

// Height returns the current ledger height.
func (n *Node) Height() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.height
}

// AdvanceHeight moves the ledger to the next height and returns it.
func (n *Node) AdvanceHeight() (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	next := n.height + 1
	tx := n.manager.Begin()
	if err := tx.HeightPut(next); err != nil {
		tx.Discard()
		return n.height, err
	}
	if err := tx.Commit(); err != nil {
		return n.height, err
	}
	n.height = next
	n.metrics.SetHeight(next)
	return next, nil
}

type mutation func(engine *tipjar.Engine, ledger *bank.Ledger, height uint64) error

// apply runs fn against a fresh transaction. The write set is committed only
// when fn succeeds and the buffered events are released after the commit.
func (n *Node) apply(operation string, fn mutation) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	tx := n.manager.Begin()
	ledger := bank.NewLedger(tx)
	buffer := &events.Buffer{}
	engine := tipjar.NewEngine()
	engine.SetState(tx)
	engine.SetTransferer(ledger)
	engine.SetEmitter(buffer)

	if err := fn(engine, ledger, n.height); err != nil {
		tx.Discard()
		n.metrics.RecordOperation(operation, outcome(err))
		n.logger.Debug("operation rejected", slog.String("method", operation), slog.String("error", err.Error()))
		return err
	}
	writes := tx.Pending()
	if err := tx.Commit(); err != nil {
		n.metrics.RecordOperation(operation, "commit_failed")
		n.logger.Error("commit failed", slog.String("method", operation), slog.String("error", err.Error()))
		return err
	}
	n.metrics.RecordOperation(operation, "ok")
	n.logger.Debug("operation committed", slog.String("method", operation), slog.Int("writes", writes))
	buffer.Flush(n.emitter)
	return nil
}

func outcome(err error) string {
	var tipErr *tipjar.Error
	if errors.As(err, &tipErr) {
		return tipErr.Name
	}
	return "error"
}

func (n *Node) view(fn func(q *tipjar.Query, tx *ledgerstate.Tx) error) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	tx := n.manager.Begin()
	defer tx.Discard()
	return fn(tipjar.NewQuery(tx), tx)
}

// RegisterCreator registers caller as a creator.
func (n *Node) RegisterCreator(caller [20]byte, displayName string) error {
	return n.apply("register_creator", func(engine *tipjar.Engine, _ *bank.Ledger, height uint64) error {
		return engine.Register(caller, displayName, height)
	})
}

// UpdateDisplayName renames caller's creator profile.
func (n *Node) UpdateDisplayName(caller [20]byte, newName string) error {
	return n.apply("update_display_name", func(engine *tipjar.Engine, _ *bank.Ledger, height uint64) error {
		return engine.UpdateDisplayName(caller, newName, height)
	})
}

// SendTip transfers amount from caller to recipient and records the tip.
func (n *Node) SendTip(caller, recipient [20]byte, amount *big.Int, message *string) (uint64, error) {
	var id uint64
	err := n.apply("send_tip", func(engine *tipjar.Engine, _ *bank.Ledger, height uint64) error {
		var err error
		id, err = engine.SendTip(caller, recipient, amount, message, height)
		return err
	})
	if err != nil {
		return 0, err
	}
	n.metrics.RecordTip(amount)
	return id, nil
}

// Faucet credits the configured development allowance to account.
func (n *Node) Faucet(account [20]byte) (*big.Int, error) {
	if n.faucet == nil {
		return nil, ErrFaucetDisabled
	}
	var balance *big.Int
	err := n.apply("faucet", func(_ *tipjar.Engine, ledger *bank.Ledger, _ uint64) error {
		if err := ledger.Credit(account, n.faucet); err != nil {
			return err
		}
		var err error
		balance, err = ledger.Balance(account)
		return err
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// Balance returns the spendable balance of account.
func (n *Node) Balance(account [20]byte) (*big.Int, error) {
	var balance *big.Int
	err := n.view(func(_ *tipjar.Query, tx *ledgerstate.Tx) error {
		var err error
		balance, err = tx.BalanceGet(account)
		return err
	})
	return balance, err
}

// CreatorInfo returns the profile of account.
func (n *Node) CreatorInfo(account [20]byte) (*tipjar.CreatorProfile, bool, error) {
	var (
		profile *tipjar.CreatorProfile
		ok      bool
	)
	err := n.view(func(q *tipjar.Query, _ *ledgerstate.Tx) error {
		var err error
		profile, ok, err = q.CreatorInfo(account)
		return err
	})
	return profile, ok, err
}

// IsCreator reports whether account has registered.
func (n *Node) IsCreator(account [20]byte) (bool, error) {
	_, ok, err := n.CreatorInfo(account)
	return ok, err
}

// Tip returns the tip with the given id.
func (n *Node) Tip(id uint64) (*tipjar.TipRecord, bool, error) {
	var (
		tip *tipjar.TipRecord
		ok  bool
	)
	err := n.view(func(q *tipjar.Query, _ *ledgerstate.Tx) error {
		var err error
		tip, ok, err = q.Tip(id)
		return err
	})
	return tip, ok, err
}

// TipCounter returns the id of the latest tip.
func (n *Node) TipCounter() (uint64, error) {
	var counter uint64
	err := n.view(func(q *tipjar.Query, _ *ledgerstate.Tx) error {
		var err error
		counter, err = q.TipCounter()
		return err
	})
	return counter, err
}

// PlatformStats returns the global tip totals.
func (n *Node) PlatformStats() (tipjar.PlatformStats, error) {
	var stats tipjar.PlatformStats
	err := n.view(func(q *tipjar.Query, _ *ledgerstate.Tx) error {
		var err error
		stats, err = q.PlatformStats()
		return err
	})
	return stats, err
}

// TipperStats returns the aggregate of tips from tipper to recipient.
func (n *Node) TipperStats(recipient, tipper [20]byte) (*tipjar.TipperStats, bool, error) {
	var (
		stats *tipjar.TipperStats
		ok    bool
	)
	err := n.view(func(q *tipjar.Query, _ *ledgerstate.Tx) error {
		var err error
		stats, ok, err = q.TipperStats(recipient, tipper)
		return err
	})
	return stats, ok, err
}

// CreatorTipIDs returns the ids of every tip received by recipient.
func (n *Node) CreatorTipIDs(recipient [20]byte) ([]uint64, error) {
	var ids []uint64
	err := n.view(func(q *tipjar.Query, _ *ledgerstate.Tx) error {
		var err error
		ids, err = q.CreatorTipIDs(recipient)
		return err
	})
	return ids, err
}

// RecentTips returns up to limit of recipient's newest tips, newest first.
func (n *Node) RecentTips(recipient [20]byte, limit uint64) ([]*tipjar.TipRecord, error) {
	var tips []*tipjar.TipRecord
	err := n.view(func(q *tipjar.Query, _ *ledgerstate.Tx) error {
		var err error
		tips, err = q.RecentTips(recipient, limit)
		return err
	})
	return tips, err
}

// Tips returns the tips with ids in [from, to], skipping ids that do not exist.
// Exports and the indexer backfill use it to walk the log.
func (n *Node) Tips(from, to uint64) ([]*tipjar.TipRecord, error) {
	var tips []*tipjar.TipRecord
	err := n.view(func(q *tipjar.Query, _ *ledgerstate.Tx) error {
		if from == 0 {
			from = 1
		}
		for id := from; id <= to && id >= from; id++ {
			tip, ok, err := q.Tip(id)
			if err != nil {
				return err
			}
			if ok {
				tips = append(tips, tip)
			}
		}
		return nil
	})
	return tips, err
}
