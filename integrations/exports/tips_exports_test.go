package exports

import (
	"bytes"
	"errors"
	"math/big"
	"strings"
	"testing"

	"tipjar/crypto"
	"tipjar/native/tipjar"
)

func sampleTips() []*tipjar.TipRecord {
	msg := "Great content!"
	tipper := crypto.DeriveAccount("export-tipper")
	creator := crypto.DeriveAccount("export-creator")
	return []*tipjar.TipRecord{
		{ID: 1, Tipper: tipper, Recipient: creator, Amount: big.NewInt(50_000), Message: &msg, Timestamp: 7, CreatedAtHeight: 7},
		nil,
		{ID: 2, Tipper: tipper, Recipient: creator, Amount: big.NewInt(30_000), Timestamp: 8, CreatedAtHeight: 8},
	}
}

func TestTipsCSV(t *testing.T) {
	data, checksum, err := TipsCSV(sampleTips())
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	if checksum != Checksum(data) {
		t.Fatalf("checksum mismatch")
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %d lines", len(lines))
	}
	if lines[0] != strings.Join(csvHeader, ",") {
		t.Fatalf("unexpected header: %s", lines[0])
	}
	if !strings.HasPrefix(lines[1], "1,tj1") || !strings.Contains(lines[1], ",50000,true,Great content!,7,7,") {
		t.Fatalf("unexpected first row: %s", lines[1])
	}
	if !strings.Contains(lines[2], ",30000,false,,8,8,") {
		t.Fatalf("unexpected second row: %s", lines[2])
	}
}

func TestTipsJSONL(t *testing.T) {
	data, checksum, err := TipsJSONL(sampleTips())
	if err != nil {
		t.Fatalf("jsonl: %v", err)
	}
	if len(checksum) != 64 {
		t.Fatalf("expected hex blake3 checksum, got %q", checksum)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two records, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `"message":"Great content!"`) {
		t.Fatalf("missing message: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"message":null`) {
		t.Fatalf("absent message must encode as null: %s", lines[1])
	}
}

func TestTipsParquet(t *testing.T) {
	data, checksum, err := TipsParquet(sampleTips())
	if err != nil {
		t.Fatalf("parquet: %v", err)
	}
	if checksum != Checksum(data) {
		t.Fatalf("checksum mismatch")
	}
	magic := []byte("PAR1")
	if !bytes.HasPrefix(data, magic) || !bytes.HasSuffix(data, magic) {
		t.Fatalf("payload is not framed as parquet")
	}
}

func TestTipsDispatchesByFormat(t *testing.T) {
	csvData, _, err := Tips(FormatCSV, sampleTips())
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	direct, _, _ := TipsCSV(sampleTips())
	if !bytes.Equal(csvData, direct) {
		t.Fatalf("dispatch produced a different payload")
	}
	if _, _, err := Tips(Format("xml"), nil); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
	if FormatJSONL.ContentType() != "application/x-ndjson" {
		t.Fatalf("unexpected content type %s", FormatJSONL.ContentType())
	}
}

func TestChecksumIsDeterministic(t *testing.T) {
	a, sumA, err := TipsJSONL(sampleTips())
	if err != nil {
		t.Fatalf("jsonl: %v", err)
	}
	b, sumB, err := TipsJSONL(sampleTips())
	if err != nil {
		t.Fatalf("jsonl: %v", err)
	}
	if !bytes.Equal(a, b) || sumA != sumB {
		t.Fatalf("exports must be deterministic")
	}
}
