package testutil

import (
	"flag"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

var RunLong = flag.Bool("long", false, "run long/heavy tests")

func RequireLong(t *testing.T) {
	t.Helper()
	if !*RunLong {
		t.Skip("skipping long test (use -long to enable)")
	}
}

func IsLongEnabled() bool {
	return *RunLong
}

// Logger returns a logger that discards output unless -v is set.
func Logger(t testing.TB) *logrus.Logger {
	t.Helper()
	log := logrus.New()
	if !testing.Verbose() {
		log.SetOutput(io.Discard)
	}
	log.SetLevel(logrus.DebugLevel)
	return log
}
