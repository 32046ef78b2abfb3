package lifecycle

import "os"

// SetSignalResetForTests replaces the disposition reset run on the first
// watched signal and returns a restore function.
func SetSignalResetForTests(fn func(...os.Signal)) func() {
	previous := resetSignals
	resetSignals = fn
	return func() {
		resetSignals = previous
	}
}
