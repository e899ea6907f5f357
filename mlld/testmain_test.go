package mlld

import (
	"os"
	"testing"

	"github.com/mlld-lang/mlld-go/logger"
)

func TestMain(m *testing.M) {
	// Disable logging during tests to avoid polluting the default log file
	logger.Reset()
	logger.Init(os.DevNull)

	code := m.Run()

	logger.Reset()
	os.Exit(code)
}
