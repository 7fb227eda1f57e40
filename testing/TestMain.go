package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("PARADIGM_TEST_MODE", "1")
	})
}

func init() {
	ensureTestMode()
}

// TestMain marks the process as a test run before any test executes.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
