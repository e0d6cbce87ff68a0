package app

import (
	"os"
	"strconv"
	"sync/atomic"
)

// testModeEnv is set by the testing package so the cmd binaries can run main
// without dialing PostgreSQL or Redis.
const testModeEnv = "FARMDESK_TEST_MODE"

var testMode atomic.Pointer[bool]

// InTestMode reports whether main should return before connecting to external
// services. Any value strconv.ParseBool accepts as true enables it.
func InTestMode() bool {
	if on := testMode.Load(); on != nil {
		return *on
	}
	return RefreshTestMode()
}

// RefreshTestMode re-reads FARMDESK_TEST_MODE and returns the new value.
func RefreshTestMode() bool {
	on, _ := strconv.ParseBool(os.Getenv(testModeEnv))
	testMode.Store(&on)
	return on
}
