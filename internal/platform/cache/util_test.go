package cache

import (
	"testing"
	"time"
)

func TestTimeUntilNextUTCDay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		now      time.Time
		expected time.Duration
	}{
		{"midnight", time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), 24 * time.Hour},
		{"noon", time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC), 12 * time.Hour},
		{"one second before midnight", time.Date(2024, 3, 4, 23, 59, 59, 0, time.UTC), time.Second},
		{"non-UTC input is converted", time.Date(2024, 3, 4, 9, 0, 0, 0, time.FixedZone("JST", 9*60*60)), 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := TimeUntilNextUTCDay(tt.now); got != tt.expected {
				t.Errorf("TimeUntilNextUTCDay(%v) = %v, expected %v", tt.now, got, tt.expected)
			}
		})
	}
}

func TestTimeUntilNextUTCDay_AlwaysPositive(t *testing.T) {
	t.Parallel()

	// Run multiple times to ensure consistency
	for i := 0; i < 10; i++ {
		d := TimeUntilNextUTCDay(time.Now())
		if d <= 0 || d > 24*time.Hour {
			t.Errorf("iteration %d: expected duration in (0, 24h], got %v", i, d)
		}
	}
}
