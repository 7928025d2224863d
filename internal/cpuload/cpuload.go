// Package cpuload implements an advisory CPU-idleness sampler: a
// platform-specific snapshot of per-CPU user/system/idle counters, used by
// the scheduler to decide whether to throttle new spawns. It must never
// affect correctness, only spawn timing, and is a no-op on platforms where
// /proc/stat does not exist.
//
// Adapted from distri's internal/trace.cpuEvents/CPUEvents, which parses
// the same file on the same ticker cadence to emit Chrome-trace counter
// events; here the parsed counters feed a throttle decision instead of a
// trace sink.
package cpuload

import (
	"os"
	"strconv"
	"strings"
)

// Snapshot is a point-in-time read of aggregate CPU counters from
// /proc/stat's "cpu " line (all cores summed).
type Snapshot struct {
	User, Nice, System, Idle uint64
	available                bool
}

// Take reads /proc/stat. On platforms without it (anything but Linux), it
// returns a Snapshot with available=false and IdlePercent always reports
// 100, so throttling never engages — advisory only
func Take() Snapshot {
	b, err := os.ReadFile("/proc/stat")
	if err != nil {
		return Snapshot{}
	}
	for _, line := range strings.Split(string(b), "\n") {
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		return Snapshot{
			User:      parseOr0(fields[1]),
			Nice:      parseOr0(fields[2]),
			System:    parseOr0(fields[3]),
			Idle:      parseOr0(fields[4]),
			available: true,
		}
	}
	return Snapshot{}
}

func parseOr0(s string) uint64 {
	n, _ := strconv.ParseUint(s, 10, 64)
	return n
}

// IdlePercent computes the idle percentage of the interval between before
// and after. Returns 100 (never throttle) if either snapshot is
// unavailable or no time has elapsed.
func IdlePercent(before, after Snapshot) float64 {
	if !before.available || !after.available {
		return 100
	}
	totalBefore := before.User + before.Nice + before.System + before.Idle
	totalAfter := after.User + after.Nice + after.System + after.Idle
	if totalAfter <= totalBefore {
		return 100
	}
	idleDiff := after.Idle - before.Idle
	totalDiff := totalAfter - totalBefore
	return 100 * float64(idleDiff) / float64(totalDiff)
}

// ShouldThrottle reports whether the scheduler should hold off spawning one
// more unit than strictly necessary, given a sampled idle percentage and a
// configured floor below which the system is considered saturated.
func ShouldThrottle(idlePercent, floor float64) bool {
	if floor <= 0 {
		return false // throttling disabled
	}
	return idlePercent < floor
}
