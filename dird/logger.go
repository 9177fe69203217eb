// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package dird

import "log"

// Logger defines an interface that implementers can use to redirect the
// queue's informational, error, and fatal messages into their own
// application. Messages are keyed by job id where applicable.
type Logger interface {
	Printf(format string, v ...interface{})
}

// stdLogger implements the Logger interface by wrapping the Go log package.
type stdLogger struct{}

func (stdLogger) Printf(format string, v ...interface{}) {
	log.Printf(format, v...)
}

// DefaultLogger returns the same stdlib-backed Logger New uses when no
// WithLogger option is supplied, for callers of sibling packages (e.g.
// history) that want the same default without depending on an unexported
// type.
func DefaultLogger() Logger {
	return stdLogger{}
}

// fatalf reports a counter-invariant violation. The process is not
// terminated: the breach is logged and the caller decides how to proceed.
// The message is prefixed distinctly so operators can alert on it.
func fatalf(logger Logger, format string, v ...interface{}) {
	logger.Printf("FATAL: jobqueue: "+format, v...)
}
