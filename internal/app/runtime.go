package app

import (
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// TestModeEnv switches the binaries into test mode: they return before opening
// Postgres, Redis or a listener, and the router drops its request logger.
const TestModeEnv = "ODYSSEY_TEST_MODE"

var testMode struct {
	once sync.Once
	on   atomic.Bool
}

// InTestMode reports whether TestModeEnv was set when first checked.
func InTestMode() bool {
	testMode.once.Do(RefreshTestMode)
	return testMode.on.Load()
}

// RefreshTestMode re-reads TestModeEnv. "1" and "true" enable test mode.
func RefreshTestMode() {
	v := strings.TrimSpace(os.Getenv(TestModeEnv))
	testMode.on.Store(v == "1" || strings.EqualFold(v, "true"))
}
