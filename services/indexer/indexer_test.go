package indexer

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/google/uuid"

	"tipjar/core"
	"tipjar/crypto"
	"tipjar/native/tipjar"
	"tipjar/storage"
)

var (
	creatorAcct = crypto.DeriveAccount("indexer-creator")
	tipperAcct  = crypto.DeriveAccount("indexer-tipper")
)

func newTestIndexer(t *testing.T) *Indexer {
	t.Helper()
	db, err := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	idx, err := New(db)
	if err != nil {
		t.Fatalf("new indexer: %v", err)
	}
	t.Cleanup(idx.Close)
	return idx
}

func sampleTip(id uint64, amount int64, message *string) *tipjar.TipRecord {
	return &tipjar.TipRecord{
		ID:              id,
		Tipper:          tipperAcct,
		Recipient:       creatorAcct,
		Amount:          big.NewInt(amount),
		Message:         message,
		Timestamp:       id + 10,
		CreatedAtHeight: id + 10,
	}
}

func TestApplyMirrorsCreatorAndTips(t *testing.T) {
	idx := newTestIndexer(t)
	ctx := context.Background()

	if err := idx.Apply(ctx, tipjar.CreatorRegisteredEvent(creatorAcct, "Mirror", 3)); err != nil {
		t.Fatalf("register: %v", err)
	}
	msg := "thanks"
	if err := idx.Apply(ctx, tipjar.TipSentEvent(sampleTip(1, 50_000, &msg))); err != nil {
		t.Fatalf("tip 1: %v", err)
	}
	if err := idx.Apply(ctx, tipjar.TipSentEvent(sampleTip(2, 30_000, nil))); err != nil {
		t.Fatalf("tip 2: %v", err)
	}

	creator, ok, err := idx.Creator(ctx, crypto.FormatAccount(creatorAcct))
	if err != nil || !ok {
		t.Fatalf("creator lookup: ok=%v err=%v", ok, err)
	}
	if creator.DisplayName != "Mirror" || creator.RegisteredAt != 3 {
		t.Fatalf("unexpected creator row %+v", creator)
	}
	if creator.TotalReceived != "80000" || creator.TipCount != 2 {
		t.Fatalf("unexpected totals %s/%d", creator.TotalReceived, creator.TipCount)
	}

	tips, err := idx.TipsByTipper(ctx, crypto.FormatAccount(tipperAcct), 10)
	if err != nil {
		t.Fatalf("tips by tipper: %v", err)
	}
	if len(tips) != 2 || tips[0].ID != 2 || tips[1].ID != 1 {
		t.Fatalf("unexpected tips %+v", tips)
	}
	if tips[0].Message != nil {
		t.Fatalf("expected absent message to stay NULL")
	}
	if tips[1].Message == nil || *tips[1].Message != "thanks" {
		t.Fatalf("expected message to round trip")
	}
}

func TestApplyIsIdempotentOnReceipt(t *testing.T) {
	idx := newTestIndexer(t)
	ctx := context.Background()
	evt := tipjar.TipSentEvent(sampleTip(1, 40_000, nil))
	for i := 0; i < 3; i++ {
		if err := idx.Apply(ctx, evt); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}
	creator, ok, err := idx.Creator(ctx, crypto.FormatAccount(creatorAcct))
	if err != nil || !ok {
		t.Fatalf("creator lookup: ok=%v err=%v", ok, err)
	}
	if creator.TipCount != 1 || creator.TotalReceived != "40000" {
		t.Fatalf("replayed tip was double counted: %+v", creator)
	}
}

func TestApplyRename(t *testing.T) {
	idx := newTestIndexer(t)
	ctx := context.Background()
	if err := idx.Apply(ctx, tipjar.CreatorRegisteredEvent(creatorAcct, "Before", 1)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := idx.Apply(ctx, tipjar.CreatorRenamedEvent(creatorAcct, "Before", "After", 2)); err != nil {
		t.Fatalf("rename: %v", err)
	}
	creator, _, err := idx.Creator(ctx, crypto.FormatAccount(creatorAcct))
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if creator.DisplayName != "After" || creator.RegisteredAt != 1 {
		t.Fatalf("unexpected creator after rename %+v", creator)
	}
}

func TestApplyRenameSkipsUnmirroredCreator(t *testing.T) {
	idx := newTestIndexer(t)
	ctx := context.Background()
	if err := idx.Apply(ctx, tipjar.CreatorRenamedEvent(creatorAcct, "Before", "After", 4)); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, ok, err := idx.Creator(ctx, crypto.FormatAccount(creatorAcct)); err != nil || ok {
		t.Fatalf("rename must not create a row: ok=%v err=%v", ok, err)
	}
}

func TestBackfillCopiesProfilesCommittedOffline(t *testing.T) {
	idx := newTestIndexer(t)
	ctx := context.Background()
	node, err := core.NewNode(storage.NewMemDB(), core.Options{
		Genesis: map[[20]byte]*big.Int{tipperAcct: big.NewInt(1_000_000)},
	})
	if err != nil {
		t.Fatalf("node: %v", err)
	}
	if err := node.RegisterCreator(creatorAcct, "Offline"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := node.AdvanceHeight(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, err := node.SendTip(tipperAcct, creatorAcct, big.NewInt(10_000), nil); err != nil {
		t.Fatalf("tip: %v", err)
	}
	if err := node.UpdateDisplayName(creatorAcct, "Renamed Offline"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	profile, _, err := node.CreatorInfo(creatorAcct)
	if err != nil {
		t.Fatalf("ledger profile: %v", err)
	}

	tips, err := node.Tips(1, 1)
	if err != nil {
		t.Fatalf("read tips: %v", err)
	}
	inserted, err := idx.Backfill(ctx, node, tips)
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if inserted != 1 {
		t.Fatalf("expected one inserted tip, got %d", inserted)
	}

	row, ok, err := idx.Creator(ctx, crypto.FormatAccount(creatorAcct))
	if err != nil || !ok {
		t.Fatalf("creator lookup: ok=%v err=%v", ok, err)
	}
	if row.DisplayName != "Renamed Offline" || row.RegisteredAt != profile.RegisteredAt || row.RegisteredAt != 1 {
		t.Fatalf("mirror diverged from ledger: %+v vs %+v", row, profile)
	}
	if row.TotalReceived != "10000" || row.TipCount != 1 {
		t.Fatalf("unexpected totals %s/%d", row.TotalReceived, row.TipCount)
	}

	// A second pass refreshes the profile without double counting.
	if inserted, err := idx.Backfill(ctx, node, tips); err != nil || inserted != 0 {
		t.Fatalf("replayed backfill: inserted=%d err=%v", inserted, err)
	}
	row, _, _ = idx.Creator(ctx, crypto.FormatAccount(creatorAcct))
	if row.TotalReceived != "10000" || row.TipCount != 1 {
		t.Fatalf("replayed backfill double counted: %+v", row)
	}
}

func TestApplyRejectsMalformedTip(t *testing.T) {
	idx := newTestIndexer(t)
	evt := tipjar.TipSentEvent(sampleTip(1, 10_000, nil))
	evt.Attributes["amount"] = "lots"
	if err := idx.Apply(context.Background(), evt); err == nil {
		t.Fatalf("expected malformed tip to be rejected")
	}
}

func TestEmitThroughNodeAndBackfill(t *testing.T) {
	idx := newTestIndexer(t)
	ctx := context.Background()
	node, err := core.NewNode(storage.NewMemDB(), core.Options{
		Emitter: idx,
		Genesis: map[[20]byte]*big.Int{tipperAcct: big.NewInt(1_000_000)},
	})
	if err != nil {
		t.Fatalf("node: %v", err)
	}
	if err := node.RegisterCreator(creatorAcct, "Live"); err != nil {
		t.Fatalf("register: %v", err)
	}
	for _, amount := range []int64{10_000, 20_000, 30_000} {
		if _, err := node.SendTip(tipperAcct, creatorAcct, big.NewInt(amount), nil); err != nil {
			t.Fatalf("tip: %v", err)
		}
	}
	idx.Close()

	last, err := idx.LastTipID(ctx)
	if err != nil {
		t.Fatalf("last tip: %v", err)
	}
	if last != 3 {
		t.Fatalf("expected last mirrored tip 3, got %d", last)
	}

	tips, err := node.Tips(1, 3)
	if err != nil {
		t.Fatalf("read tips: %v", err)
	}
	inserted, err := idx.Backfill(ctx, node, tips)
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("expected backfill of mirrored tips to be a no-op, inserted %d", inserted)
	}

	top, err := idx.TopCreators(ctx, 5)
	if err != nil {
		t.Fatalf("top creators: %v", err)
	}
	if len(top) != 1 || top[0].DisplayName != "Live" || top[0].TotalReceived != "60000" {
		t.Fatalf("unexpected top creators %+v", top)
	}
}

func TestBackfillFillsGaps(t *testing.T) {
	idx := newTestIndexer(t)
	ctx := context.Background()
	inserted, err := idx.Backfill(ctx, nil, []*tipjar.TipRecord{sampleTip(1, 10_000, nil), nil, sampleTip(2, 15_000, nil)})
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if inserted != 2 {
		t.Fatalf("expected two inserted tips, got %d", inserted)
	}
	last, err := idx.LastTipID(ctx)
	if err != nil || last != 2 {
		t.Fatalf("expected last id 2, got %d (%v)", last, err)
	}
}

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := Open("  "); err != ErrDSNRequired {
		t.Fatalf("expected ErrDSNRequired, got %v", err)
	}
	if !isPostgresDSN("postgres://user@localhost/tipjar") || !isPostgresDSN("host=db user=tipjar") {
		t.Fatalf("expected postgres DSNs to be detected")
	}
	if isPostgresDSN("/var/lib/tipjar/index.db") {
		t.Fatalf("sqlite path misdetected as postgres")
	}
}
