package bridge

import (
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// Read pumps unblock when their sockets close during cleanup but
		// may not fully drain before goleak checks.
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}
