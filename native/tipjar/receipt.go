package tipjar

import (
	"bytes"
	"encoding/binary"

	"lukechampine.com/blake3"
)

// ReceiptHash returns a digest that uniquely identifies the tip contents.
// Downstream mirrors use it to deduplicate replays of the same event.
func (t *TipRecord) ReceiptHash() [32]byte {
	var buf bytes.Buffer
	var scratch [8]byte
	binary.BigEndian.PutUint64(scratch[:], t.ID)
	buf.Write(scratch[:])
	buf.Write(t.Tipper[:])
	buf.Write(t.Recipient[:])
	amount := newBigInt(t.Amount).Bytes()
	binary.BigEndian.PutUint64(scratch[:], uint64(len(amount)))
	buf.Write(scratch[:])
	buf.Write(amount)
	binary.BigEndian.PutUint64(scratch[:], t.CreatedAtHeight)
	buf.Write(scratch[:])
	if t.Message != nil {
		buf.WriteByte(1)
		buf.WriteString(*t.Message)
	} else {
		buf.WriteByte(0)
	}
	return blake3.Sum256(buf.Bytes())
}
