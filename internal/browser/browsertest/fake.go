// Package browsertest provides an in-memory browser.Driver for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"chatrelay-backend/internal/browser"

	"github.com/playwright-community/playwright-go"
)

// EvaluateFunc answers a script evaluation on page.
type EvaluateFunc func(page *Page, script string, arg interface{}) (interface{}, error)

// Driver is a fake browser.Driver. Zero value is ready to use; every
// evaluation fails until Evaluate is set.
type Driver struct {
	LaunchErr     error
	NewContextErr error
	CloseErr      error
	Evaluate      EvaluateFunc

	// LaunchHook, when set, runs inside Launch; tests use it to hold a launch open.
	LaunchHook func()

	Launches atomic.Int32
	Created  atomic.Int32
	Closed   atomic.Bool

	mu    sync.Mutex
	pages []*Page
}

var _ browser.Driver = (*Driver)(nil)

func (d *Driver) Launch(ctx context.Context) error {
	d.Launches.Add(1)
	if d.LaunchHook != nil {
		d.LaunchHook()
	}
	return d.LaunchErr
}

func (d *Driver) NewContext(ctx context.Context) (browser.Context, error) {
	if d.NewContextErr != nil {
		return nil, d.NewContextErr
	}
	d.Created.Add(1)

	page := &Page{driver: d, bindings: make(map[string]playwright.ExposedFunction)}
	d.mu.Lock()
	d.pages = append(d.pages, page)
	d.mu.Unlock()
	return page, nil
}

func (d *Driver) Close() error {
	d.Closed.Store(true)
	return d.CloseErr
}

// Pages returns every page the driver created, in creation order.
func (d *Driver) Pages() []*Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Page(nil), d.pages...)
}

// OpenPages counts pages that have not been closed.
func (d *Driver) OpenPages() int {
	n := 0
	for _, p := range d.Pages() {
		if !p.IsClosed() {
			n++
		}
	}
	return n
}

// Page is a fake browser.Context.
type Page struct {
	driver *Driver

	mu       sync.Mutex
	bindings map[string]playwright.ExposedFunction
	closes   int
	closed   chan struct{}
	once     sync.Once
}

func (p *Page) Evaluate(expression string, arg ...interface{}) (interface{}, error) {
	if p.IsClosed() {
		return nil, errors.New("target page, context or browser has been closed")
	}
	if p.driver.Evaluate == nil {
		return nil, errors.New("no evaluate handler")
	}
	var a interface{}
	if len(arg) > 0 {
		a = arg[0]
	}
	return p.driver.Evaluate(p, expression, a)
}

func (p *Page) ExposeFunction(name string, binding playwright.ExposedFunction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.bindings[name]; exists {
		return fmt.Errorf("function %q has been already registered", name)
	}
	p.bindings[name] = binding
	return nil
}

// Call invokes an exposed binding the way page script would.
func (p *Page) Call(name string, args ...interface{}) (interface{}, error) {
	p.mu.Lock()
	binding, ok := p.bindings[name]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("function %q not exposed", name)
	}
	return binding(args...), nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	p.closes++
	p.mu.Unlock()
	p.once.Do(func() { close(p.doneChan()) })
	return nil
}

// Done is closed once the page is closed.
func (p *Page) Done() <-chan struct{} {
	return p.doneChan()
}

func (p *Page) IsClosed() bool {
	select {
	case <-p.doneChan():
		return true
	default:
		return false
	}
}

func (p *Page) CloseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

func (p *Page) doneChan() chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed == nil {
		p.closed = make(chan struct{})
	}
	return p.closed
}
