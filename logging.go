package fat32

import (
	"context"
	"fmt"
	"reflect"

	"github.com/dsoprea/go-logging"
	"github.com/pkg/errors"
)

// Logger is the narrow diagnostic sink the engine publishes events through.
// The engine never writes to a terminal or a global logger directly; every
// warning or escalation in the error taxonomy of the design routes through
// whichever Logger the Volume was constructed with.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// goLoggingSink adapts github.com/dsoprea/go-logging, the logging package
// this engine's design is grounded on, to the narrow Logger interface.
type goLoggingSink struct {
	ctx context.Context
	gl  *log.Logger
}

// NewDefaultLogger returns a Logger backed by go-logging for the given
// facility name, the same way the teacher obtains a logger per-package.
func NewDefaultLogger(facility string) Logger {
	return &goLoggingSink{
		ctx: context.Background(),
		gl:  log.NewLogger(facility),
	}
}

func (s *goLoggingSink) Debugf(format string, args ...interface{}) {
	s.gl.Debugf(s.ctx, format, args...)
}

func (s *goLoggingSink) Infof(format string, args ...interface{}) {
	s.gl.Infof(s.ctx, format, args...)
}

func (s *goLoggingSink) Warnf(format string, args ...interface{}) {
	s.gl.Warningf(s.ctx, format, args...)
}

func (s *goLoggingSink) Errorf(format string, args ...interface{}) {
	s.gl.Errorf(s.ctx, nil, format, args...)
}

// RecordingLogger accumulates every call it receives, keyed by level, so
// tests can assert on emitted diagnostics without depending on the real
// logger's global state.
type RecordingLogger struct {
	Debug []string
	Info  []string
	Warn  []string
	Error []string
}

// NewRecordingLogger returns an empty RecordingLogger.
func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{}
}

func (r *RecordingLogger) Debugf(format string, args ...interface{}) {
	r.Debug = append(r.Debug, fmt.Sprintf(format, args...))
}

func (r *RecordingLogger) Infof(format string, args ...interface{}) {
	r.Info = append(r.Info, fmt.Sprintf(format, args...))
}

func (r *RecordingLogger) Warnf(format string, args ...interface{}) {
	r.Warn = append(r.Warn, fmt.Sprintf(format, args...))
}

func (r *RecordingLogger) Errorf(format string, args ...interface{}) {
	r.Error = append(r.Error, fmt.Sprintf(format, args...))
}

// nullLogger discards everything; used as the zero-value fallback so a
// Volume constructed without an explicit Logger never nil-derefs.
type nullLogger struct{}

func (nullLogger) Debugf(string, ...interface{}) {}
func (nullLogger) Infof(string, ...interface{})  {}
func (nullLogger) Warnf(string, ...interface{})  {}
func (nullLogger) Errorf(string, ...interface{}) {}

// recoverAsError is the teacher's panic/recover-at-the-boundary idiom: every
// exported engine method defers this to translate an internal log.Panicf
// into a plain returned error, so callers never observe a panic.
func recoverAsError(err *error) {
	if errRaw := recover(); errRaw != nil {
		if asErr, ok := errRaw.(error); ok {
			*err = errors.WithStack(asErr)
		} else {
			*err = fmt.Errorf("panic not an error: [%s] [%v]", reflect.TypeOf(errRaw).Name(), errRaw)
		}
	}
}
