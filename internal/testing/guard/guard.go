// Package guard flips the application into test mode when imported from a
// test binary, so nothing dials Postgres or Redis by accident.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("STUDIOLEDGER_TEST_MODE") == "" {
			_ = os.Setenv("STUDIOLEDGER_TEST_MODE", "1")
		}
	})
}
