package oauth

import (
	"testing"
	"time"
)

func TestDue(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	window := 20 * time.Minute

	cases := []struct {
		name   string
		expiry time.Time
		want   bool
	}{
		{"already expired", now.Add(-time.Hour), true},
		{"expires right now", now, true},
		{"inside the window", now.Add(10 * time.Minute), true},
		{"exactly at the window edge", now.Add(window), true},
		{"just outside the window", now.Add(window + time.Second), false},
		{"far in the future", now.Add(24 * time.Hour), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Due(tc.expiry, window, now); got != tc.want {
				t.Errorf("Due(%v) = %v, want %v", tc.expiry, got, tc.want)
			}
		})
	}
}
