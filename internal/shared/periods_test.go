package shared

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPeriodRangeFirstHalf(t *testing.T) {
	start, end, err := PeriodRange(date(2025, time.March, 7), PeriodFirstHalf)
	if err != nil {
		t.Fatalf("PeriodRange() error = %v", err)
	}
	if !start.Equal(date(2025, time.March, 1)) {
		t.Fatalf("expected start 2025-03-01 got %v", start)
	}
	if !end.Equal(date(2025, time.March, 15)) {
		t.Fatalf("expected end 2025-03-15 got %v", end)
	}
}

func TestPeriodRangeSecondHalfMonthLengths(t *testing.T) {
	cases := []struct {
		name string
		ref  time.Time
		end  time.Time
	}{
		{"february non-leap", date(2025, time.February, 20), date(2025, time.February, 28)},
		{"february leap", date(2024, time.February, 16), date(2024, time.February, 29)},
		{"thirty days", date(2025, time.April, 30), date(2025, time.April, 30)},
		{"thirty one days", date(2025, time.March, 16), date(2025, time.March, 31)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end, err := PeriodRange(tc.ref, PeriodSecondHalf)
			if err != nil {
				t.Fatalf("PeriodRange() error = %v", err)
			}
			if start.Day() != 16 {
				t.Fatalf("expected start on day 16 got %v", start)
			}
			if !end.Equal(tc.end) {
				t.Fatalf("expected end %v got %v", tc.end, end)
			}
		})
	}
}

func TestPeriodRangeRejectsUnknownType(t *testing.T) {
	if _, _, err := PeriodRange(date(2025, time.March, 1), PeriodType("1-31")); err == nil {
		t.Fatal("expected error for unknown period type")
	}
}

func TestParsePeriodType(t *testing.T) {
	if _, err := ParsePeriodType("1-15"); err != nil {
		t.Fatalf("ParsePeriodType(1-15) error = %v", err)
	}
	if _, err := ParsePeriodType("16-31"); err != nil {
		t.Fatalf("ParsePeriodType(16-31) error = %v", err)
	}
	if _, err := ParsePeriodType("16-30"); err == nil {
		t.Fatal("expected error for 16-30")
	}
}

func TestPeriodReference(t *testing.T) {
	if got := PeriodReference(date(2025, time.March, 9)); !got.Equal(date(2025, time.March, 1)) {
		t.Fatalf("expected 2025-03-01 got %v", got)
	}
	if got := PeriodReference(date(2025, time.March, 28)); !got.Equal(date(2025, time.March, 16)) {
		t.Fatalf("expected 2025-03-16 got %v", got)
	}
	if got := PeriodTypeFor(date(2025, time.March, 15)); got != PeriodFirstHalf {
		t.Fatalf("expected first half got %v", got)
	}
	if got := PeriodTypeFor(date(2025, time.March, 16)); got != PeriodSecondHalf {
		t.Fatalf("expected second half got %v", got)
	}
}
