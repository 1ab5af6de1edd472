package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"tipjar/core/events"
	"tipjar/core/types"
	"tipjar/crypto"
	"tipjar/native/tipjar"
	"tipjar/observability"
)

const (
	defaultQueueSize = 256
	applyTimeout     = 10 * time.Second
)

var (
	// ErrDSNRequired is returned by Open when no connection string is configured.
	ErrDSNRequired = errors.New("indexer: dsn required")
	errMalformed   = errors.New("indexer: malformed event")
)

// Open connects to the mirror database. DSNs that look like PostgreSQL
// connection strings use the postgres driver; anything else is treated as a
// sqlite path or URI.
func Open(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrDSNRequired
	}
	var dialector gorm.Dialector
	if isPostgresDSN(dsn) {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open database: %w", err)
	}
	return db, nil
}

func isPostgresDSN(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "postgres://") ||
		strings.HasPrefix(lower, "postgresql://") ||
		strings.Contains(lower, "host=")
}

// Indexer mirrors committed ledger events into SQL. It implements
// events.Emitter; events are applied asynchronously by a single worker so the
// ledger never waits on the database.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan *types.Event
	wg     sync.WaitGroup
}

// Option mutates indexer configuration.
type Option func(*Indexer)

// WithLogger overrides the indexer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Indexer) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithQueueSize overrides the number of events buffered ahead of the worker.
func WithQueueSize(size int) Option {
	return func(i *Indexer) {
		if size > 0 {
			i.queue = make(chan *types.Event, size)
		}
	}
}

// New migrates the mirror schema and starts the worker goroutine.
func New(db *gorm.DB, opts ...Option) (*Indexer, error) {
	if db == nil {
		return nil, errors.New("indexer: database required")
	}
	idx := &Indexer{
		db:     db,
		logger: slog.Default(),
		queue:  make(chan *types.Event, defaultQueueSize),
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = idx.logger.With("component", "indexer")
	if err := db.AutoMigrate(&Creator{}, &Tip{}); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	idx.wg.Add(1)
	go idx.worker()
	return idx, nil
}

// Emit implements events.Emitter. Events that do not fit in the queue are
// dropped and counted; Backfill recovers missed tips.
func (i *Indexer) Emit(evt events.Event) {
	payload, ok := tipjar.Unwrap(evt)
	if !ok {
		return
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return
	}
	select {
	case i.queue <- payload:
	default:
		observability.Events().RecordDropped("indexer")
		i.logger.Warn("indexer queue full, dropping event", slog.String("type", payload.Type))
	}
}

// Close stops accepting events and waits for queued events to be applied.
func (i *Indexer) Close() {
	if i == nil {
		return
	}
	i.mu.Lock()
	if !i.closed {
		i.closed = true
		close(i.queue)
	}
	i.mu.Unlock()
	i.wg.Wait()
}

func (i *Indexer) worker() {
	defer i.wg.Done()
	for evt := range i.queue {
		ctx, cancel := context.WithTimeout(context.Background(), applyTimeout)
		if err := i.Apply(ctx, evt); err != nil {
			i.logger.Error("apply event failed",
				slog.String("type", evt.Type),
				slog.Uint64("height", evt.Height),
				slog.String("error", err.Error()))
		}
		cancel()
	}
}

// Apply mirrors a single event. Applying the same event twice is a no-op.
func (i *Indexer) Apply(ctx context.Context, evt *types.Event) error {
	if evt == nil {
		return nil
	}
	var (
		outcome string
		err     error
	)
	switch evt.Type {
	case tipjar.EventTypeCreatorRegistered:
		outcome, err = i.applyRegistered(ctx, evt)
	case tipjar.EventTypeCreatorRenamed:
		outcome, err = i.applyRenamed(ctx, evt)
	case tipjar.EventTypeTipSent:
		outcome, err = i.applyTip(ctx, evt)
	default:
		return nil
	}
	if err != nil {
		outcome = "error"
	}
	observability.Events().RecordIndexed(evt.Type, outcome)
	return err
}

func (i *Indexer) applyRegistered(ctx context.Context, evt *types.Event) (string, error) {
	address := evt.Attr("creator")
	if address == "" {
		return "", errMalformed
	}
	creator := Creator{
		Address:       address,
		DisplayName:   evt.Attr("displayName"),
		RegisteredAt:  evt.Height,
		TotalReceived: "0",
		UpdatedAt:     time.Now().UTC(),
	}
	res := i.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "registered_at"}),
	}).Create(&creator)
	if res.Error != nil {
		return "", fmt.Errorf("upsert creator: %w", res.Error)
	}
	return "upserted", nil
}

// applyRenamed only touches existing rows. A rename for a creator the mirror
// never saw is left to Backfill, which copies the full profile.
func (i *Indexer) applyRenamed(ctx context.Context, evt *types.Event) (string, error) {
	address := evt.Attr("creator")
	if address == "" {
		return "", errMalformed
	}
	res := i.db.WithContext(ctx).Model(&Creator{}).Where("address = ?", address).Updates(map[string]interface{}{
		"display_name": evt.Attr("displayName"),
		"updated_at":   time.Now().UTC(),
	})
	if res.Error != nil {
		return "", fmt.Errorf("rename creator: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		i.logger.Warn("rename for unmirrored creator", slog.String("creator", address))
		return "missing", nil
	}
	return "updated", nil
}

func (i *Indexer) applyTip(ctx context.Context, evt *types.Event) (string, error) {
	id, err := strconv.ParseUint(evt.Attr("id"), 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: tip id: %v", errMalformed, err)
	}
	amount, ok := new(big.Int).SetString(evt.Attr("amount"), 10)
	if !ok || evt.Attr("receipt") == "" || evt.Attr("recipient") == "" {
		return "", errMalformed
	}
	tip := Tip{
		ID:        id,
		Receipt:   evt.Attr("receipt"),
		Tipper:    evt.Attr("tipper"),
		Recipient: evt.Attr("recipient"),
		Amount:    amount.String(),
		Height:    evt.Height,
		IndexedAt: time.Now().UTC(),
	}
	if msg, ok := evt.Attributes["message"]; ok {
		tip.Message = &msg
	}

	outcome := "inserted"
	err = i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&tip)
		if res.Error != nil {
			return fmt.Errorf("insert tip: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			outcome = "duplicate"
			return nil
		}
		var creator Creator
		err := tx.First(&creator, "address = ?", tip.Recipient).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&Creator{
				Address:       tip.Recipient,
				TotalReceived: amount.String(),
				TipCount:      1,
				UpdatedAt:     time.Now().UTC(),
			}).Error
		case err != nil:
			return fmt.Errorf("load creator: %w", err)
		}
		total, ok := new(big.Int).SetString(creator.TotalReceived, 10)
		if !ok {
			total = new(big.Int)
		}
		total.Add(total, amount)
		return tx.Model(&Creator{}).Where("address = ?", tip.Recipient).Updates(map[string]interface{}{
			"total_received": total.String(),
			"tip_count":      creator.TipCount + 1,
			"updated_at":     time.Now().UTC(),
		}).Error
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// ProfileSource resolves current creator profiles from the ledger.
type ProfileSource interface {
	CreatorInfo(account [20]byte) (*tipjar.CreatorProfile, bool, error)
}

// Backfill applies tips read from the ledger, typically those after
// LastTipID. When profiles is set, the profile of every recipient is copied
// first so creators registered or renamed while the indexer was offline carry
// their ledger name and registration height. It returns the number of tips
// that were not yet mirrored.
func (i *Indexer) Backfill(ctx context.Context, profiles ProfileSource, tips []*tipjar.TipRecord) (int, error) {
	synced := make(map[[20]byte]struct{})
	inserted := 0
	for _, tip := range tips {
		if tip == nil {
			continue
		}
		if _, done := synced[tip.Recipient]; !done && profiles != nil {
			if err := i.syncProfile(ctx, profiles, tip.Recipient); err != nil {
				return inserted, fmt.Errorf("backfill creator %s: %w", crypto.FormatAccount(tip.Recipient), err)
			}
			synced[tip.Recipient] = struct{}{}
		}
		outcome, err := i.applyTip(ctx, tipjar.TipSentEvent(tip))
		if err != nil {
			observability.Events().RecordIndexed(tipjar.EventTypeTipSent, "error")
			return inserted, fmt.Errorf("backfill tip %d: %w", tip.ID, err)
		}
		observability.Events().RecordIndexed(tipjar.EventTypeTipSent, outcome)
		if outcome == "inserted" {
			inserted++
		}
	}
	return inserted, nil
}

func (i *Indexer) syncProfile(ctx context.Context, profiles ProfileSource, account [20]byte) error {
	profile, ok, err := profiles.CreatorInfo(account)
	if err != nil {
		return err
	}
	if !ok || profile == nil {
		return nil
	}
	outcome, err := i.applyRegistered(ctx, tipjar.CreatorRegisteredEvent(account, profile.DisplayName, profile.RegisteredAt))
	if err != nil {
		observability.Events().RecordIndexed(tipjar.EventTypeCreatorRegistered, "error")
		return err
	}
	observability.Events().RecordIndexed(tipjar.EventTypeCreatorRegistered, outcome)
	return nil
}

// LastTipID returns the highest mirrored tip id, or zero when empty.
func (i *Indexer) LastTipID(ctx context.Context) (uint64, error) {
	var last Tip
	err := i.db.WithContext(ctx).Order("id desc").Limit(1).Find(&last).Error
	if err != nil {
		return 0, err
	}
	return last.ID, nil
}

// TopCreators returns creators ordered by number of tips received.
func (i *Indexer) TopCreators(ctx context.Context, limit int) ([]Creator, error) {
	if limit <= 0 {
		limit = 10
	}
	var creators []Creator
	err := i.db.WithContext(ctx).Order("tip_count desc").Order("address asc").Limit(limit).Find(&creators).Error
	return creators, err
}

// TipsByTipper returns the most recent tips sent by tipper.
func (i *Indexer) TipsByTipper(ctx context.Context, tipper string, limit int) ([]Tip, error) {
	if limit <= 0 {
		limit = 50
	}
	var tips []Tip
	err := i.db.WithContext(ctx).Where("tipper = ?", tipper).Order("id desc").Limit(limit).Find(&tips).Error
	return tips, err
}

// Creator returns the mirrored row for address.
func (i *Indexer) Creator(ctx context.Context, address string) (*Creator, bool, error) {
	var creator Creator
	err := i.db.WithContext(ctx).First(&creator, "address = ?", address).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &creator, true, nil
}
