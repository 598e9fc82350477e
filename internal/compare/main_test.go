package compare

import (
	"testing"

	"go.uber.org/goleak"
)

// Every orchestrator goroutine, stale ones included, must be gone once the
// tests have closed their orchestrators.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
