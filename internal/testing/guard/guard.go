// Package guard is imported for its side effect: it marks the process as
// running under test before any app wiring reads the environment.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("BILLING_TEST_MODE") == "" {
			_ = os.Setenv("BILLING_TEST_MODE", "1")
		}
	})
}
