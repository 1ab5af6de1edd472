package exports

import (
	"bytes"
	"encoding/json"

	"tipjar/native/tipjar"
)

type jsonlTip struct {
	ID              uint64  `json:"id"`
	Tipper          string  `json:"tipper"`
	Recipient       string  `json:"recipient"`
	Amount          string  `json:"amount"`
	Message         *string `json:"message"`
	Timestamp       uint64  `json:"timestamp"`
	CreatedAtHeight uint64  `json:"created_at_height"`
	Receipt         string  `json:"receipt"`
}

// TipsJSONL builds a JSON Lines export of the supplied tips. Tips without a
// message carry an explicit null.
func TipsJSONL(tips []*tipjar.TipRecord) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, row := range flatten(tips) {
		payload := jsonlTip{
			ID:              row.ID,
			Tipper:          row.Tipper,
			Recipient:       row.Recipient,
			Amount:          row.Amount,
			Timestamp:       row.Timestamp,
			CreatedAtHeight: row.CreatedAtHeight,
			Receipt:         row.Receipt,
		}
		if row.HasMessage {
			msg := row.Message
			payload.Message = &msg
		}
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	return data, Checksum(data), nil
}
