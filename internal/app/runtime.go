package app

import (
	"os"
	"sync"
	"sync/atomic"
)

const testModeEnv = "BILLING_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

// InTestMode reports whether processes should skip external side effects such
// as connecting to PostgreSQL or Redis.
func InTestMode() bool {
	testModeOnce.Do(func() {
		testModeFlag.Store(os.Getenv(testModeEnv) == "1")
	})
	return testModeFlag.Load()
}

// SetTestMode forces the flag, overriding the environment.
func SetTestMode(on bool) {
	testModeOnce.Do(func() {})
	testModeFlag.Store(on)
}
