package exports

import (
	"bytes"
	"fmt"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"tipjar/native/tipjar"
)

type parquetTip struct {
	ID              int64  `parquet:"name=id, type=INT64"`
	Tipper          string `parquet:"name=tipper, type=BYTE_ARRAY, convertedtype=UTF8"`
	Recipient       string `parquet:"name=recipient, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount          string `parquet:"name=amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	HasMessage      bool   `parquet:"name=has_message, type=BOOLEAN"`
	Message         string `parquet:"name=message, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp       int64  `parquet:"name=timestamp, type=INT64"`
	CreatedAtHeight int64  `parquet:"name=created_at_height, type=INT64"`
	Receipt         string `parquet:"name=receipt, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// TipsParquet builds a snappy-compressed Parquet export of the supplied tips.
func TipsParquet(tips []*tipjar.TipRecord) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	fw := writerfile.NewWriterFile(buffer)
	pw, err := writer.NewParquetWriter(fw, new(parquetTip), 1)
	if err != nil {
		return nil, "", fmt.Errorf("exports: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range flatten(tips) {
		record := &parquetTip{
			ID:              int64(row.ID),
			Tipper:          row.Tipper,
			Recipient:       row.Recipient,
			Amount:          row.Amount,
			HasMessage:      row.HasMessage,
			Message:         row.Message,
			Timestamp:       int64(row.Timestamp),
			CreatedAtHeight: int64(row.CreatedAtHeight),
			Receipt:         row.Receipt,
		}
		if err := pw.Write(record); err != nil {
			_ = pw.WriteStop()
			return nil, "", fmt.Errorf("exports: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, "", fmt.Errorf("exports: parquet flush: %w", err)
	}
	data := buffer.Bytes()
	return data, Checksum(data), nil
}
