// Ambient structured logging. The store never writes to a sink itself —
// the sink (file, stderr, remote collector) is the caller's concern,
// same as Port and Clock above — it only ever calls through a small
// Logger seam so that recovery, defragmentation, and backup leave a
// breadcrumb trail when the caller wants one.
package tlvfs

import "go.uber.org/zap"

// Logger is the subset of *zap.SugaredLogger's API the store uses.
// Accepting the interface rather than the concrete type lets tests pass
// a no-op logger without pulling in zap's test helpers.
type Logger interface {
	Debugw(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debugw(string, ...any) {}
func (nopLogger) Warnw(string, ...any)  {}
func (nopLogger) Errorw(string, ...any) {}

// defaultLogger returns a zap no-op sugared logger so Logger is never
// nil inside the engine, even when the caller passes none.
func defaultLogger() Logger {
	return zap.NewNop().Sugar()
}

var _ Logger = nopLogger{}
