// Package testing forces test mode for packages that import it so that
// binaries started under go test never dial PostgreSQL or Redis.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("BILLING_TEST_MODE", "1")
		if os.Getenv("STORE_DRIVER") == "" {
			_ = os.Setenv("STORE_DRIVER", "memory")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
