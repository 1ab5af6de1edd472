package exports

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"tipjar/native/tipjar"
)

var csvHeader = []string{"id", "tipper", "recipient", "amount", "has_message", "message", "timestamp", "created_at_height", "receipt"}

// TipsCSV builds a CSV export of the supplied tips.
func TipsCSV(tips []*tipjar.TipRecord) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	if err := writer.Write(csvHeader); err != nil {
		return nil, "", err
	}
	for _, row := range flatten(tips) {
		record := []string{
			strconv.FormatUint(row.ID, 10),
			row.Tipper,
			row.Recipient,
			row.Amount,
			strconv.FormatBool(row.HasMessage),
			row.Message,
			strconv.FormatUint(row.Timestamp, 10),
			strconv.FormatUint(row.CreatedAtHeight, 10),
			row.Receipt,
		}
		if err := writer.Write(record); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	return data, Checksum(data), nil
}
