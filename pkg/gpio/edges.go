package gpio

import "time"

// watchEdges turns raw edge wakeups into debounced level changes. It
// waits for an edge (wait returns true), samples the level, and reports
// a change once the level has been stable for bounce. It returns when
// stopped reports true.
//
// wait must block for at most timeout; a negative timeout means forever.
func watchEdges(level bool, bounce time.Duration, wait func(time.Duration) bool,
	read func() bool, stopped func() bool, emit EdgeHandler) {

	pending := level
	for !stopped() {
		timeout := time.Duration(-1)
		if pending != level {
			timeout = bounce
		}
		if wait(timeout) {
			if stopped() {
				return
			}
			pending = read()
			if bounce <= 0 && pending != level {
				level = pending
				emit(level)
			}
			continue
		}
		// Quiet for a full bounce period
		if pending != level && !stopped() {
			level = pending
			emit(level)
		}
	}
}
