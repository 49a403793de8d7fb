package browser

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/playwright-community/playwright-go"
)

var (
	ErrInitialization = errors.New("browser initialization failed")
	ErrPoolClosed     = errors.New("session pool is closed")
	ErrAdmission      = errors.New("no session slot available")
	ErrSessionCreate  = errors.New("session creation failed")
	ErrNavigation     = errors.New("warm-up navigation failed")
	ErrEvaluate       = errors.New("in-page evaluation failed")
)

// Page is the part of a browser page callers drive: running scripts in the
// page and exposing Go callbacks to it.
type Page interface {
	Evaluate(expression string, arg ...interface{}) (interface{}, error)
	ExposeFunction(name string, binding playwright.ExposedFunction) error
}

// Context is an isolated browser context (own cookies and storage) owning a
// single page.
type Context interface {
	Page
	Close() error
}

// Driver owns the shared browser process and opens isolated contexts on it.
// NewContext returns a context that is already prepared for upstream calls.
type Driver interface {
	Launch(ctx context.Context) error
	NewContext(ctx context.Context) (Context, error)
	Close() error
}

// Session is one isolated execution context checked out of a Pool. It is
// used by exactly one request and released exactly once.
type Session struct {
	ID        string
	CreatedAt time.Time

	context  Context
	released atomic.Bool
}

func (s *Session) Page() Page {
	return s.context
}

// EvaluateString runs script with arg inside the session page and returns
// the string it resolves to. The call is abandoned when ctx is done; the
// page keeps running it until the session is released.
func (s *Session) EvaluateString(ctx context.Context, script string, arg interface{}) (string, error) {
	type result struct {
		value interface{}
		err   error
	}

	done := make(chan result, 1)
	go func() {
		value, err := s.context.Evaluate(script, arg)
		done <- result{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("%w: %v", ErrEvaluate, res.err)
		}
		text, ok := res.value.(string)
		if !ok {
			return "", fmt.Errorf("%w: unexpected result type %T", ErrEvaluate, res.value)
		}
		return text, nil
	}
}
