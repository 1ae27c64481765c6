package earnings

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestConsolidateLastWriteWins(t *testing.T) {
	model := uuid.New()
	base := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	values := []RawValue{
		{ModelID: model, PlatformID: "chaturbate", PeriodDate: base, Value: 100, UpdatedAt: base.Add(1 * time.Hour)},
		{ModelID: model, PlatformID: "big7", PeriodDate: base, Value: 50, UpdatedAt: base.Add(2 * time.Hour)},
		{ModelID: model, PlatformID: "chaturbate", PeriodDate: base.AddDate(0, 0, 3), Value: 250, UpdatedAt: base.Add(5 * time.Hour)},
		{ModelID: model, PlatformID: "chaturbate", PeriodDate: base.AddDate(0, 0, 2), Value: 175, UpdatedAt: base.Add(3 * time.Hour)},
	}

	out := Consolidate(values)
	if len(out) != 2 {
		t.Fatalf("expected 2 consolidated rows, got %d", len(out))
	}
	byPlatform := map[string]RawValue{}
	for _, v := range out {
		byPlatform[v.PlatformID] = v
	}
	if byPlatform["chaturbate"].Value != 250 {
		t.Fatalf("expected latest chaturbate value 250, got %v", byPlatform["chaturbate"].Value)
	}
	if byPlatform["big7"].Value != 50 {
		t.Fatalf("expected big7 value 50, got %v", byPlatform["big7"].Value)
	}
}

func TestConsolidateEmpty(t *testing.T) {
	if out := Consolidate(nil); len(out) != 0 {
		t.Fatalf("expected empty output, got %d rows", len(out))
	}
}
