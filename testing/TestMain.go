// Package testing puts the binaries into test mode. Import it for side effects
// from the tests of a main package.
package testing

import (
	"os"

	"github.com/odyssey-erp/gobd-ledger/internal/app"
)

func init() {
	_ = os.Setenv(app.TestModeEnv, "1")
	app.RefreshTestMode()
}
