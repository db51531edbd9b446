//go:build linux

package utils

import (
	"runtime"

	perf "github.com/hodgesds/perf-utils"
)

// CountInstructions runs fn locked to the calling OS thread and returns the
// number of CPU instructions retired by that thread. Work fn hands to other
// goroutines is not counted.
func CountInstructions(fn func() error) (count uint64, err error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	var pv *perf.ProfileValue
	if pv, err = perf.CPUInstructions(fn); err != nil {
		return
	}
	count = pv.Value
	return
}
