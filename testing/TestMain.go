// Package testing puts the process into test mode when imported by a test
// binary. Binaries check app.InTestMode and skip runtime startup.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

// fulfillmentEnv lists settings a developer shell may export that would make
// config tests depend on the host.
var fulfillmentEnv = []string{
	"FULFILLMENT_INVENTORY_MODE",
	"STOCK_SHORTFALL_POLICY",
	"ORDER_LEASE_TTL",
	"TX_MAX_RETRIES",
	"RATE_LIMIT_PER_MINUTE",
}

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("ODYSSEY_TEST_MODE", "1")
		for _, key := range fulfillmentEnv {
			_ = os.Unsetenv(key)
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
