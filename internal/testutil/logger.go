// Package testutil holds the helpers profile and infrastructure tests
// share: a manually advanced clock, a quiet logger, and client-side crypto
// for driving the encrypted login handshakes.
package testutil

import "go.uber.org/zap"

// Logger returns a development zap logger for tests. Construction cannot
// fail with default options, so failure panics rather than returning error.
func Logger() *zap.Logger {
	l, err := zap.NewDevelopment()
	if err != nil {
		panic("testutil.Logger: " + err.Error())
	}
	return l
}
