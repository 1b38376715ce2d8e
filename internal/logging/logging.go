// Package logging wires the engine packages' optional structured logging
// to the same logiface + stumpy pairing used throughout the corpus this
// module is built from: a *logiface.Logger[*stumpy.Event], writing
// newline-delimited JSON.
//
// Every engine constructor accepts one of these loggers (or nil, which
// behaves as a disabled logger -- logiface.Logger's methods are nil-safe,
// so callers never need to guard a nil *Logger before use).
package logging

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the concrete logger type every engine constructor accepts.
type Logger = logiface.Logger[*stumpy.Event]

// Level re-exports logiface.Level so callers configuring a Logger don't
// need a direct logiface import.
type Level = logiface.Level

const (
	LevelDisabled = logiface.LevelDisabled
	LevelError    = logiface.LevelError
	LevelWarning  = logiface.LevelWarning
	LevelInfo     = logiface.LevelInformational
	LevelDebug    = logiface.LevelDebug
)

// New constructs a stumpy-backed Logger writing to w at the given level.
// A nil w defaults to os.Stderr.
func New(w io.Writer, level Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	factory := logiface.LoggerFactory[*stumpy.Event]{}
	return factory.New(
		factory.WithLevel(level),
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
	)
}

// Default returns a Logger writing to os.Stderr at LevelInformational,
// the configuration cmd/ptmdemo uses unless overridden.
func Default() *Logger { return New(os.Stderr, LevelInfo) }
