// Package relay carries text fragments produced by a script inside a browser
// page to a Go consumer. The page can only reach Go through an exposed
// callback, one message at a time, so fragments are queued here until the
// consumer asks for them.
package relay

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"
)

type State int

const (
	StateInit State = iota
	StateStreaming
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) terminal() bool {
	return s == StateDone || s == StateError
}

// StreamError is the failure reported by the page. Status is the upstream
// HTTP status when the failure was a non-success response, zero otherwise.
type StreamError struct {
	Status  int
	Message string
}

func (e *StreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return e.Message
}

// Relay is an unbounded ordered queue with a single waiter slot. Producers
// call Push, Complete and Fail; one consumer calls Next.
type Relay struct {
	mu     sync.Mutex
	state  State
	buffer []string
	err    error
	wake   chan struct{}
}

func New() *Relay {
	return &Relay{wake: make(chan struct{}, 1)}
}

func (r *Relay) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Push appends fragments in order. Pushes after a terminal signal are dropped.
func (r *Relay) Push(fragments ...string) {
	r.mu.Lock()
	if r.state.terminal() {
		r.mu.Unlock()
		return
	}
	r.state = StateStreaming
	r.buffer = append(r.buffer, fragments...)
	r.mu.Unlock()
	r.signal()
}

func (r *Relay) Complete() {
	r.finish(StateDone, nil)
}

func (r *Relay) Fail(err error) {
	r.finish(StateError, err)
}

func (r *Relay) finish(state State, err error) {
	r.mu.Lock()
	if r.state.terminal() {
		r.mu.Unlock()
		return
	}
	r.state = state
	r.err = err
	r.mu.Unlock()
	r.signal()
}

// Next returns the next fragment. Buffered fragments are always delivered
// before the terminal signal: io.EOF after completion, the stream error after
// a failure.
func (r *Relay) Next(ctx context.Context) (string, error) {
	for {
		r.mu.Lock()
		if len(r.buffer) > 0 {
			fragment := r.buffer[0]
			r.buffer[0] = ""
			r.buffer = r.buffer[1:]
			r.mu.Unlock()
			return fragment, nil
		}
		state, err := r.state, r.err
		r.mu.Unlock()

		switch state {
		case StateDone:
			return "", io.EOF
		case StateError:
			return "", err
		}

		select {
		case <-r.wake:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (r *Relay) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Binding adapts the relay to a function exposed in the page. The page calls
// it with {batch: [...]}, {error: "...", status: n}, a bare string, or null
// for completion.
func (r *Relay) Binding() playwright.ExposedFunction {
	return func(args ...interface{}) interface{} {
		if len(args) == 0 || args[0] == nil {
			r.Complete()
			return nil
		}

		switch chunk := args[0].(type) {
		case string:
			r.Push(chunk)
		case map[string]interface{}:
			if msg, ok := chunk["error"]; ok && msg != nil {
				r.Fail(&StreamError{Status: toInt(chunk["status"]), Message: fmt.Sprint(msg)})
				return nil
			}
			if batch, ok := chunk["batch"].([]interface{}); ok {
				fragments := make([]string, 0, len(batch))
				for _, item := range batch {
					if s, ok := item.(string); ok {
						fragments = append(fragments, s)
					}
				}
				r.Push(fragments...)
			}
		}
		return nil
	}
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
