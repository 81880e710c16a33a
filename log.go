package tile3d

import "go.uber.org/zap"

// Logger is the package-wide structured logger. Components that need to
// log once (encoder fallback, atlas resource overrun) use this logger
// rather than taking one as an explicit parameter, keeping that
// cross-cutting concern out of core function signatures.
var Logger = func() *zap.SugaredLogger {
	l, err := zap.NewProduction()
	if err != nil {
		// zap.NewProduction only fails on a broken sink; fall back to a
		// no-op core rather than panicking on import.
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}()

// SetLogger replaces the package logger. Callers embedding tile3d in a
// larger pipeline should call this once at startup with their own
// configured zap logger.
func SetLogger(l *zap.SugaredLogger) {
	if l != nil {
		Logger = l
	}
}
