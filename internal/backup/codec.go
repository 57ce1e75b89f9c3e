package backup

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/foodfleet/seedkit/internal/domain"

	"github.com/google/uuid"
)

// encodeSnapshot serializes a snapshot document to gzip-compressed JSON.
func encodeSnapshot(doc domain.SnapshotDocument) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)

	if err := json.NewEncoder(gz).Encode(doc); err != nil {
		return nil, fmt.Errorf("encode snapshot document: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("compress snapshot document: %w", err)
	}

	return buf.Bytes(), nil
}

// decodeSnapshot reverses encodeSnapshot. Numbers are decoded as
// json.Number and narrowed afterwards so integer columns survive the
// round trip without float drift.
func decodeSnapshot(data []byte) (domain.SnapshotDocument, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot document: %w", err)
	}
	defer gz.Close()

	dec := json.NewDecoder(gz)
	dec.UseNumber()

	var doc domain.SnapshotDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode snapshot document: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing data after snapshot document")
	}

	for _, rows := range doc {
		for _, row := range rows {
			for column, value := range row {
				row[column] = narrowNumber(value)
			}
		}
	}

	return doc, nil
}

func narrowNumber(value any) any {
	num, ok := value.(json.Number)
	if !ok {
		return value
	}
	if i, err := num.Int64(); err == nil {
		return i
	}
	if f, err := num.Float64(); err == nil {
		return f
	}
	return num.String()
}

// normalizeValue maps a pgx-decoded column value onto a JSON-safe scalar
// with type fidelity: timestamps as ISO-8601 strings, uuids as strings,
// booleans as booleans, null as null. Opaque text (password hashes) passes
// through verbatim.
func normalizeValue(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case [16]byte:
		return uuid.UUID(v).String()
	case []byte:
		return string(v)
	default:
		return v
	}
}

// snapshotKey renders the object-store key for a snapshot: time-ordered so
// lexical ordering approximates chronological ordering.
func snapshotKey(prefix string, createdAt time.Time, executionID uuid.UUID) string {
	return fmt.Sprintf(
		"%s/%s_execution_%s.json.gz",
		prefix,
		createdAt.UTC().Format("20060102T150405Z"),
		executionID,
	)
}
