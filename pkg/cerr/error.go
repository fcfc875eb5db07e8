package cerr

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/agentdeck/agentdeck/pkg/clog"
)

// Error pairs a user-facing message with a transport Code while keeping
// the underlying cause for logs only.
type Error struct {
	Code  Code
	Msg   string // returned to the client together with Code
	Err   error  // kept for logging, never sent to the client
	Stack string // captured only for codes that log at error level
}

func NewError(code Code, msg string, underlying error) *Error {
	e := &Error{Code: code, Msg: msg, Err: underlying}
	if code.Level() == clog.LevelError {
		e.Stack = captureStack()
	}
	return e
}

// Newf is NewError with a formatted underlying error; msg stays the
// client-facing text.
func Newf(code Code, msg string, format string, args ...any) *Error {
	return NewError(code, msg, fmt.Errorf(format, args...))
}

func captureStack() string {
	buf := make([]byte, 2048)
	return string(buf[:runtime.Stack(buf, false)])
}

func (e *Error) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Msg)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCode reports whether err carries code anywhere in its chain.
func IsCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
