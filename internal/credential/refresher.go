package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"sync"
	"time"

	"chatrelay-backend/internal/browser"
	"chatrelay-backend/internal/metrics"
	"chatrelay-backend/internal/model"
	"chatrelay-backend/internal/storage"
	"chatrelay-backend/pkg/logger"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

var ErrFetch = errors.New("credential fetch failed")

// tokenPattern matches the signed token literal in the upstream challenge
// script. Tokens later in the script are newer.
var tokenPattern = regexp.MustCompile(`window\.V_C\.push\s*\(\s*\(\s*\)\s*=>\s*X\s*\([^,]*,[^,]*,[^,]*,\s*"(eyJ[^"]+)"`)

const (
	refreshKey  = "refresh"
	maxNonce    = 0.2
	previewSize = 30
)

// SessionSource lends browser sessions for the script fetch.
type SessionSource interface {
	Acquire(ctx context.Context) (*browser.Session, error)
	Release(session *browser.Session)
}

type Config struct {
	ScriptURL       string
	UserAgent       string
	RefreshInterval time.Duration
	FetchTimeout    time.Duration
	Defaults        model.Credential
	// Store, when set, persists the fetched token so a restart within the
	// refresh interval reuses it.
	Store storage.Storage
}

type Status struct {
	CurrentE   *string `json:"currentE"`
	CurrentV   float64 `json:"currentV"`
	LastFetch  int64   `json:"lastFetch"`
	URL        string  `json:"url"`
	HasLatestE bool    `json:"hasLatestE"`
}

// Refresher keeps the x-is-human credential current. At most one fetch runs
// at a time; concurrent Refresh calls share its outcome.
type Refresher struct {
	config   Config
	sessions SessionSource
	group    singleflight.Group

	mu        sync.RWMutex
	data      model.Credential
	latest    string
	lastFetch time.Time

	now   func() time.Time
	nonce func() float64
	log   *logrus.Entry
}

func NewRefresher(config Config, sessions SessionSource) *Refresher {
	if config.RefreshInterval == 0 {
		config.RefreshInterval = 4 * time.Hour
	}
	if config.FetchTimeout == 0 {
		config.FetchTimeout = 30 * time.Second
	}
	r := &Refresher{
		config:   config,
		sessions: sessions,
		data:     config.Defaults,
		now:      time.Now,
		nonce:    func() float64 { return rand.Float64() * maxNonce },
		log:      logger.WithComponent("credential"),
	}
	r.restore()
	return r
}

func (r *Refresher) restore() {
	if r.config.Store == nil {
		return
	}
	record, err := r.config.Store.Load()
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			r.log.WithError(err).Warn("ignoring stored token")
		}
		return
	}
	r.data.E = record.Token
	r.latest = record.Token
	r.lastFetch = record.FetchedAt
	r.log.WithField("token", preview(record.Token)).Info("restored stored token")
}

func (r *Refresher) persist(token string, fetchedAt time.Time) {
	if r.config.Store == nil {
		return
	}
	if err := r.config.Store.Save(&storage.TokenRecord{Token: token, FetchedAt: fetchedAt}); err != nil {
		r.log.WithError(err).Warn("could not store token")
	}
}

// Snapshot returns the current credential with a fresh nonce.
func (r *Refresher) Snapshot() model.Credential {
	r.mu.RLock()
	data := r.data
	r.mu.RUnlock()

	data.V = r.nonce()
	return data
}

// Refresh fetches a new token unless the last successful fetch is younger
// than the refresh interval. The caller that starts the fetch learns whether
// it succeeded; callers joining it, or giving up on it when ctx ends, learn
// whether a token is held. On failure the previous token stays in place.
//
// The fetch outlives the caller that started it, bounded by FetchTimeout.
func (r *Refresher) Refresh(ctx context.Context) bool {
	leader := false
	ch := r.group.DoChan(refreshKey, func() (interface{}, error) {
		leader = true
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.FetchTimeout)
		defer cancel()
		return r.refresh(fetchCtx), nil
	})

	select {
	case res := <-ch:
		if leader {
			return res.Val.(bool)
		}
		return r.held()
	case <-ctx.Done():
		return r.held()
	}
}

func (r *Refresher) held() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data.E != ""
}

func (r *Refresher) refresh(ctx context.Context) bool {
	if r.fresh() {
		metrics.RecordCredentialRefresh("cached")
		return true
	}

	token, err := r.fetchLatest(ctx)
	if err != nil {
		metrics.RecordCredentialRefresh("failed")
		r.log.WithError(err).Warn("keeping previous token")
		return false
	}

	fetchedAt := r.now()
	r.mu.Lock()
	r.data.E = token
	r.latest = token
	r.lastFetch = fetchedAt
	r.mu.Unlock()
	r.persist(token, fetchedAt)

	metrics.RecordCredentialRefresh("fetched")
	r.log.WithField("token", preview(token)).Info("token refreshed")
	return true
}

func (r *Refresher) fresh() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest != "" && r.now().Sub(r.lastFetch) < r.config.RefreshInterval
}

type scriptResult struct {
	Status int    `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}

func (r *Refresher) fetchLatest(ctx context.Context) (string, error) {
	session, err := r.sessions.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer r.sessions.Release(session)

	raw, err := session.EvaluateString(ctx, fetchScript, map[string]interface{}{
		"url":       r.config.ScriptURL,
		"userAgent": r.config.UserAgent,
		"timeoutMs": r.config.FetchTimeout.Milliseconds(),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}

	var res scriptResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return "", fmt.Errorf("%w: decode result: %v", ErrFetch, err)
	}
	if res.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrFetch, res.Error)
	}
	if res.Status < 200 || res.Status > 299 {
		return "", fmt.Errorf("%w: HTTP %d", ErrFetch, res.Status)
	}

	token, ok := ExtractLatestToken(res.Text)
	if !ok {
		return "", fmt.Errorf("%w: token pattern not found", ErrFetch)
	}
	return token, nil
}

// ExtractLatestToken returns the last token literal in script.
func ExtractLatestToken(script string) (string, bool) {
	matches := tokenPattern.FindAllStringSubmatch(script, -1)
	if len(matches) == 0 {
		return "", false
	}
	return matches[len(matches)-1][1], true
}

func (r *Refresher) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := Status{
		CurrentV:   r.nonce(),
		URL:        r.config.ScriptURL,
		HasLatestE: r.latest != "",
	}
	if r.data.E != "" {
		p := preview(r.data.E) + "..."
		status.CurrentE = &p
	}
	if !r.lastFetch.IsZero() {
		status.LastFetch = r.lastFetch.UnixMilli()
	}
	return status
}

func preview(token string) string {
	if len(token) > previewSize {
		return token[:previewSize]
	}
	return token
}
