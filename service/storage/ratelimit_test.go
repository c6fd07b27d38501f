package storage

import (
	"testing"
	"time"
)

func TestWindowStartAligns(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 7, 43, 500_000_000, time.UTC)

	cases := []struct {
		name   string
		window time.Duration
		want   time.Time
	}{
		{"minute", time.Minute, time.Date(2025, 3, 1, 10, 7, 0, 0, time.UTC)},
		{"ten_seconds", 10 * time.Second, time.Date(2025, 3, 1, 10, 7, 40, 0, time.UTC)},
		{"hour", time.Hour, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"zero_falls_back_to_minute", 0, time.Date(2025, 3, 1, 10, 7, 0, 0, time.UTC)},
		{"sub_second_clamps", 100 * time.Millisecond, time.Date(2025, 3, 1, 10, 7, 43, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := WindowStart(base, tc.window)
			if !got.Equal(tc.want) {
				t.Fatalf("WindowStart(%v) = %v, want %v", tc.window, got, tc.want)
			}
		})
	}
}

func TestWindowStartStableWithinWindow(t *testing.T) {
	a := time.Date(2025, 3, 1, 10, 7, 0, 0, time.UTC)
	b := a.Add(59 * time.Second)
	c := a.Add(60 * time.Second)

	if !WindowStart(a, time.Minute).Equal(WindowStart(b, time.Minute)) {
		t.Fatal("same window must align to the same start")
	}
	if WindowStart(a, time.Minute).Equal(WindowStart(c, time.Minute)) {
		t.Fatal("next window must roll over")
	}
}

func TestRateKeyShape(t *testing.T) {
	got := rateKey("203.0.113.7", 1700000000)
	want := "inbox:rl:203.0.113.7:1700000000"
	if got != want {
		t.Fatalf("rateKey = %q, want %q", got, want)
	}
}
