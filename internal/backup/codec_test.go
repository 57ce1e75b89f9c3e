package backup

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/foodfleet/seedkit/internal/domain"
)

func TestSnapshotRoundTrip(t *testing.T) {
	doc := domain.SnapshotDocument{
		"permissions": {
			{"id": "7f0c0b9e-0000-0000-0000-000000000001", "name": "users:read", "sort": int64(3)},
			{"id": "7f0c0b9e-0000-0000-0000-000000000002", "name": "users:create", "sort": int64(1)},
		},
		"sms_templates": {
			{"name": "2fa_code", "content": "Your code is {{code}}", "active": true, "weight": 0.5},
		},
	}

	data, err := encodeSnapshot(doc)
	if err != nil {
		t.Fatalf("encodeSnapshot returned error: %v", err)
	}

	decoded, err := decodeSnapshot(data)
	if err != nil {
		t.Fatalf("decodeSnapshot returned error: %v", err)
	}

	if len(decoded) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(decoded))
	}
	if got := decoded["permissions"][0]["sort"]; got != int64(3) {
		t.Errorf("expected integer to survive as int64, got %T %v", got, got)
	}
	if got := decoded["sms_templates"][0]["weight"]; got != 0.5 {
		t.Errorf("expected float to survive, got %T %v", got, got)
	}
	if got := decoded["sms_templates"][0]["active"]; got != true {
		t.Errorf("expected boolean to survive, got %T %v", got, got)
	}
	if got := decoded["permissions"][1]["name"]; got != "users:create" {
		t.Errorf("expected row order preserved, got %v", got)
	}
}

func TestDecodeSnapshotRejectsGarbage(t *testing.T) {
	if _, err := decodeSnapshot([]byte("not gzip")); err == nil {
		t.Fatalf("expected error for non-gzip input")
	}
}

func TestNarrowNumber(t *testing.T) {
	if got := narrowNumber(json.Number("42")); got != int64(42) {
		t.Errorf("expected int64 42, got %T %v", got, got)
	}
	if got := narrowNumber(json.Number("3.25")); got != 3.25 {
		t.Errorf("expected float 3.25, got %T %v", got, got)
	}
	if got := narrowNumber("plain"); got != "plain" {
		t.Errorf("expected non-numbers untouched, got %v", got)
	}
}

func TestNormalizeValue(t *testing.T) {
	id := uuid.New()
	at := time.Date(2026, 3, 1, 12, 30, 0, 0, time.FixedZone("CET", 3600))

	if got := normalizeValue(nil); got != nil {
		t.Errorf("expected nil to pass through")
	}
	if got := normalizeValue(at); got != "2026-03-01T11:30:00Z" {
		t.Errorf("expected UTC RFC3339 timestamp, got %v", got)
	}
	if got := normalizeValue([16]byte(id)); got != id.String() {
		t.Errorf("expected uuid string, got %v", got)
	}
	if got := normalizeValue([]byte("hash")); got != "hash" {
		t.Errorf("expected bytes as string, got %v", got)
	}
	if got := normalizeValue(int64(7)); got != int64(7) {
		t.Errorf("expected scalar untouched, got %v", got)
	}
}

func TestSnapshotKeyOrdering(t *testing.T) {
	id := uuid.MustParse("7f0c0b9e-0000-0000-0000-00000000000a")
	earlier := snapshotKey("database-backups", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), id)
	later := snapshotKey("database-backups", time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC), id)

	want := "database-backups/20260102T030405Z_execution_7f0c0b9e-0000-0000-0000-00000000000a.json.gz"
	if earlier != want {
		t.Fatalf("unexpected key: %s", earlier)
	}
	if !(earlier < later) {
		t.Errorf("expected lexical order to follow creation order: %s vs %s", earlier, later)
	}
}
