package feed

import (
	"testing"
	"time"
)

func TestParseLastUpdate(t *testing.T) {
	got, err := ParseLastUpdate("05/02/2024 08:15:00", nil)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	want := time.Date(2024, time.May, 2, 8, 15, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	short, err := ParseLastUpdate("5/2/2024 08:15:00", nil)
	if err != nil || !short.Equal(want) {
		t.Fatalf("expected lenient parse to give %v, got %v (%v)", want, short, err)
	}

	if _, err := ParseLastUpdate("2024-05-02T08:15:00Z", nil); err == nil {
		t.Fatal("expected ISO timestamp to be rejected")
	}
}

func TestParseLastUpdate_Location(t *testing.T) {
	dubai := time.FixedZone("GST", 4*60*60)
	got, err := ParseLastUpdate("05/02/2024 08:15:00", dubai)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if want := time.Date(2024, time.May, 2, 4, 15, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got.UTC())
	}
}
