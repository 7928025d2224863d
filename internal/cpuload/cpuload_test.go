package cpuload

import "testing"

func TestIdlePercentComputesFractionOfDelta(t *testing.T) {
	before := Snapshot{User: 100, Nice: 0, System: 50, Idle: 850, available: true}
	after := Snapshot{User: 110, Nice: 0, System: 55, Idle: 935, available: true}

	got := IdlePercent(before, after)
	// total delta = (110-100)+(55-50)+(935-850) = 10+5+85 = 100, idle delta = 85
	if got != 85 {
		t.Errorf("IdlePercent = %v, want 85", got)
	}
}

func TestIdlePercentUnavailableSnapshotNeverThrottles(t *testing.T) {
	before := Snapshot{}
	after := Snapshot{User: 10, Idle: 90, available: true}
	if got := IdlePercent(before, after); got != 100 {
		t.Errorf("IdlePercent = %v, want 100 when a snapshot is unavailable", got)
	}
}

func TestIdlePercentNoElapsedTimeNeverThrottles(t *testing.T) {
	snap := Snapshot{User: 10, Idle: 90, available: true}
	if got := IdlePercent(snap, snap); got != 100 {
		t.Errorf("IdlePercent = %v, want 100 when no time has elapsed", got)
	}
}

func TestShouldThrottle(t *testing.T) {
	cases := []struct {
		idle, floor float64
		want        bool
	}{
		{idle: 10, floor: 20, want: true},
		{idle: 30, floor: 20, want: false},
		{idle: 10, floor: 0, want: false}, // floor<=0 disables throttling
	}
	for _, c := range cases {
		if got := ShouldThrottle(c.idle, c.floor); got != c.want {
			t.Errorf("ShouldThrottle(%v, %v) = %v, want %v", c.idle, c.floor, got, c.want)
		}
	}
}
