package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"chatrelay-backend/internal/metrics"
	"chatrelay-backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// PoolConfig configures admission control. MaxSessions of zero leaves the
// pool unbounded.
type PoolConfig struct {
	MaxSessions    int
	AcquireTimeout time.Duration
}

type Stats struct {
	ActiveContexts int    `json:"activeContexts"`
	TotalCreated   int64  `json:"totalCreated"`
	Mode           string `json:"mode"`
	MaxSessions    int    `json:"maxSessions"`
}

// Pool creates a fresh isolated Session per acquisition on a lazily launched
// shared browser. The live-session map is bookkeeping only.
type Pool struct {
	driver Driver
	config PoolConfig
	slots  *semaphore.Weighted

	initMu      sync.Mutex
	initialized atomic.Bool

	mu           sync.Mutex
	active       map[string]*Session
	totalCreated int64
	closed       bool

	log *logrus.Entry
}

func NewPool(driver Driver, config PoolConfig) *Pool {
	p := &Pool{
		driver: driver,
		config: config,
		active: make(map[string]*Session),
		log:    logger.WithComponent("browser-pool"),
	}
	if config.MaxSessions > 0 {
		p.slots = semaphore.NewWeighted(int64(config.MaxSessions))
	}
	return p
}

// Init launches the shared browser once. Concurrent first callers block on
// the same launch; a failed launch is retried by the next caller.
func (p *Pool) Init(ctx context.Context) error {
	if p.initialized.Load() {
		return nil
	}

	p.initMu.Lock()
	defer p.initMu.Unlock()

	if p.initialized.Load() {
		return nil
	}
	if p.isClosed() {
		return ErrPoolClosed
	}

	p.log.WithField("mode", p.mode()).Info("launching browser")
	if err := p.driver.Launch(ctx); err != nil {
		metrics.RecordSessionFailure("launch")
		return fmt.Errorf("%w: %v", ErrInitialization, err)
	}

	p.initialized.Store(true)
	p.log.Info("browser ready")
	return nil
}

func (p *Pool) Initialized() bool {
	return p.initialized.Load()
}

// Acquire opens a new session. Every successful Acquire must be paired with
// exactly one Release.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	if err := p.admit(ctx); err != nil {
		return nil, err
	}

	browserCtx, err := p.driver.NewContext(ctx)
	if err != nil {
		p.release()
		metrics.RecordSessionFailure("create")
		return nil, fmt.Errorf("%w: %w", ErrSessionCreate, err)
	}

	session := &Session{
		ID:        "ctx_" + uuid.NewString(),
		CreatedAt: time.Now(),
		context:   browserCtx,
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.closeContext(session)
		p.release()
		return nil, ErrPoolClosed
	}
	p.active[session.ID] = session
	p.totalCreated++
	p.mu.Unlock()

	metrics.RecordSessionOpened()
	p.log.WithField("session", session.ID).Debug("session acquired")
	return session, nil
}

// Release closes the session and forgets it. Repeated calls and already
// closed browser resources are tolerated.
func (p *Pool) Release(session *Session) {
	if session == nil || !session.released.CompareAndSwap(false, true) {
		return
	}

	p.mu.Lock()
	delete(p.active, session.ID)
	p.mu.Unlock()

	p.closeContext(session)
	p.release()
	metrics.RecordSessionClosed()
	p.log.WithFields(logrus.Fields{
		"session":  session.ID,
		"lifetime": time.Since(session.CreatedAt).Round(time.Millisecond),
	}).Debug("session released")
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		ActiveContexts: len(p.active),
		TotalCreated:   p.totalCreated,
		Mode:           p.mode(),
		MaxSessions:    p.config.MaxSessions,
	}
}

// Cleanup releases all live sessions concurrently, waits for them and then
// closes the browser. Errors are logged.
func (p *Pool) Cleanup() {
	p.mu.Lock()
	p.closed = true
	sessions := make([]*Session, 0, len(p.active))
	for _, s := range p.active {
		sessions = append(sessions, s)
	}
	p.mu.Unlock()

	p.log.Infof("cleaning up %d active sessions", len(sessions))

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			p.Release(s)
		}(s)
	}
	wg.Wait()

	p.initMu.Lock()
	defer p.initMu.Unlock()
	if p.initialized.Load() {
		if err := p.driver.Close(); err != nil {
			p.log.WithError(err).Warn("closing browser")
		}
		p.initialized.Store(false)
	}
	p.log.Info("browser cleaned up")
}

func (p *Pool) admit(ctx context.Context) error {
	if p.slots == nil {
		return nil
	}
	if p.config.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.AcquireTimeout)
		defer cancel()
	}
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %v", ErrAdmission, err)
	}
	return nil
}

func (p *Pool) release() {
	if p.slots != nil {
		p.slots.Release(1)
	}
}

func (p *Pool) closeContext(session *Session) {
	if err := session.context.Close(); err != nil {
		metrics.RecordSessionFailure("close")
		p.log.WithError(err).WithField("session", session.ID).Warn("error closing session")
	}
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pool) mode() string {
	if p.config.MaxSessions > 0 {
		return "bounded"
	}
	return "unlimited"
}
