// Copyright 2025 The flexrc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rclog holds the zap logger shared by the flexrc internals.
//
// The counting core is silent: it only logs identity tracker bookkeeping at
// debug level and the fatal paths (counter overflow, identity exhaustion).
package rclog

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	logger     atomic.Pointer[zap.Logger]
	loggerOnce sync.Once
)

// Logger returns the flexrc logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		logger.CompareAndSwap(nil, zap.NewNop())
	})
	return logger.Load()
}

// SetLogger configures the flexrc logger. A nil logger restores the no-op
// logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	loggerOnce.Do(func() {})
	logger.Store(l)
}

// Abort terminates the process after logging msg at fatal level.
//
// It is reserved for broken counting invariants (reference count overflow,
// identity space exhaustion) where continuing could free a record that
// still has live handles. Tests replace it to observe the call.
var Abort = func(msg string, fields ...zap.Field) {
	Logger().Fatal(msg, fields...)
}
