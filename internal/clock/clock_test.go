package clock

import (
	"testing"
	"time"
)

func TestDayTypeOf(t *testing.T) {
	t.Parallel()
	tests := []struct {
		day  string
		want DayType
	}{
		{"2025-09-01", Weekday}, // Monday
		{"2025-09-05", Weekday}, // Friday
		{"2025-09-06", Weekend}, // Saturday
		{"2025-09-07", Weekend}, // Sunday
	}
	for _, tt := range tests {
		d, err := time.Parse("2006-01-02", tt.day)
		if err != nil {
			t.Fatalf("parse %q: %v", tt.day, err)
		}
		if got := DayTypeOf(d); got != tt.want {
			t.Fatalf("DayTypeOf(%s) = %v, want %v", tt.day, got, tt.want)
		}
	}
}

func TestNewRejectsBadZone(t *testing.T) {
	t.Parallel()
	if _, err := New("Not/AZone"); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestTodayUsesLocation(t *testing.T) {
	t.Parallel()
	p, err := New("UTC")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := time.Now().UTC().Format("2006-01-02")
	if got := p.Today(); got != want {
		t.Fatalf("Today() = %s, want %s", got, want)
	}
}
