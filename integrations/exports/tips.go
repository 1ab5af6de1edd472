package exports

import (
	"encoding/hex"
	"errors"

	"lukechampine.com/blake3"

	"tipjar/crypto"
	"tipjar/native/tipjar"
)

// ErrUnknownFormat is returned for export formats other than csv, jsonl and parquet.
var ErrUnknownFormat = errors.New("exports: unknown format")

// Format identifies an export encoding.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSONL   Format = "jsonl"
	FormatParquet Format = "parquet"
)

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatJSONL:
		return "application/x-ndjson"
	default:
		return "application/octet-stream"
	}
}

// tipRow is the flattened representation shared by every export format.
type tipRow struct {
	ID              uint64
	Tipper          string
	Recipient       string
	Amount          string
	HasMessage      bool
	Message         string
	Timestamp       uint64
	CreatedAtHeight uint64
	Receipt         string
}

func flatten(tips []*tipjar.TipRecord) []tipRow {
	rows := make([]tipRow, 0, len(tips))
	for _, tip := range tips {
		if tip == nil {
			continue
		}
		receipt := tip.ReceiptHash()
		row := tipRow{
			ID:              tip.ID,
			Tipper:          crypto.FormatAccount(tip.Tipper),
			Recipient:       crypto.FormatAccount(tip.Recipient),
			Amount:          "0",
			Timestamp:       tip.Timestamp,
			CreatedAtHeight: tip.CreatedAtHeight,
			Receipt:         hex.EncodeToString(receipt[:]),
		}
		if tip.Amount != nil {
			row.Amount = tip.Amount.String()
		}
		if tip.Message != nil {
			row.HasMessage = true
			row.Message = *tip.Message
		}
		rows = append(rows, row)
	}
	return rows
}

// Checksum returns the hex BLAKE3 digest of an export payload.
func Checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Tips encodes the tip log in the requested format and returns the payload
// alongside its checksum.
func Tips(format Format, tips []*tipjar.TipRecord) ([]byte, string, error) {
	switch format {
	case FormatCSV:
		return TipsCSV(tips)
	case FormatJSONL:
		return TipsJSONL(tips)
	case FormatParquet:
		return TipsParquet(tips)
	default:
		return nil, "", ErrUnknownFormat
	}
}
