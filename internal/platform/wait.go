package platform

import "time"

// waitForever is the Win32 INFINITE timeout.
const waitForever = ^uint32(0)

// waitMillis converts a readiness timeout to a WaitForSingleObject argument.
// Negative means wait forever; anything too long for a finite wait is clamped
// just below INFINITE.
func waitMillis(timeout time.Duration) uint32 {
	if timeout < 0 {
		return waitForever
	}
	ms := timeout / time.Millisecond
	if ms >= time.Duration(waitForever) {
		return waitForever - 1
	}
	return uint32(ms)
}
