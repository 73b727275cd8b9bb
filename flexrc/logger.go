package flexrc

import (
	"go.uber.org/zap"

	"github.com/kolkov/flexrc/internal/rc/rclog"
)

// SetLogger installs the logger used for identity tracker debug events and
// fatal conditions. A nil logger restores the default no-op logger, which
// still terminates the process on fatal conditions.
func SetLogger(l *zap.Logger) {
	rclog.SetLogger(l)
}

// Logger returns the logger installed with SetLogger.
func Logger() *zap.Logger {
	return rclog.Logger()
}
