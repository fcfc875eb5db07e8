// Package panicerr converts panics into errors at call and goroutine
// boundaries so a misbehaving engine cannot take the process down.
package panicerr

import (
	"context"
	"log/slog"

	"github.com/sourcegraph/conc/panics"
)

// Safe returns fn with panic recovery: a panic inside fn comes back as
// the returned error instead of unwinding into the caller. An error fn
// returned itself takes precedence over a recovered panic.
func Safe(fn func() error) func() error {
	return func() (err error) {
		var c panics.Catcher
		c.Try(func() { err = fn() })
		if err == nil {
			err = c.Recovered().AsError()
		}
		return err
	}
}

// SafeContext is Safe for context-taking functions.
func SafeContext(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) (err error) {
		var c panics.Catcher
		c.Try(func() { err = fn(ctx) })
		if err == nil {
			err = c.Recovered().AsError()
		}
		return err
	}
}

// Go runs fn on a new goroutine, logging a recovered panic instead of
// crashing.
func Go(fn func()) {
	go func() {
		var c panics.Catcher
		c.Try(fn)
		if r := c.Recovered(); r != nil {
			slog.Error("goroutine panicked", "panic", r.String())
		}
	}()
}
