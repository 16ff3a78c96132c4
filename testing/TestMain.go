package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

var testEnv = map[string]string{
	"ODYSSEY_POS_TEST_MODE": "1",
	"GOTENBERG_URL":         "http://127.0.0.1:0",
	"JWT_SECRET_KEY":        "odyssey-pos-test-signing-key-0123456789",
	"JWT_ISSUER":            "odyssey-pos",
	"JWT_AUDIENCE":          "odyssey-pos-api",
}

func ensureTestMode() {
	once.Do(func() {
		for key, value := range testEnv {
			if os.Getenv(key) == "" {
				_ = os.Setenv(key, value)
			}
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
