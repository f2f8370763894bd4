package app

import (
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

// TestModeEnv makes cmd/gobd and cmd/worker return before opening stores or
// listening, so their packages can be built and imported by tests.
const TestModeEnv = "GOBD_TEST_MODE"

var testMode atomic.Pointer[bool]

// InTestMode reports whether TestModeEnv holds a true value. The variable is
// read on first use only.
func InTestMode() bool {
	if on := testMode.Load(); on != nil {
		return *on
	}
	return RefreshTestMode()
}

// RefreshTestMode reads TestModeEnv again and returns the new state.
func RefreshTestMode() bool {
	on, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(TestModeEnv)))
	if err != nil {
		on = false
	}
	testMode.Store(&on)
	return on
}
