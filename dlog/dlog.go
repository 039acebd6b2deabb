// Package dlog is a thin logging façade over github.com/luxfi/log used
// by the schedulers and shard executor to report admission, refusal,
// and transform decisions without each package importing the logging
// library directly.
package dlog

import (
	"github.com/luxfi/log"
)

// Logger is the logging surface every package in this module depends
// on. It is satisfied by github.com/luxfi/log.Logger.
type Logger = log.Logger

// NoOp returns a logger that discards everything.
// ExecutionContext.Logger falls back to it when no logger is
// configured, whatever the determinism mode.
func NoOp() Logger {
	return log.NewNoOpLogger()
}

// Field constructors, re-exported so callers need only import dlog.
var (
	Err    = log.Err
	String = log.String
	Uint64 = log.Uint64
	Uint32 = log.Uint32
	Int    = log.Int
)
