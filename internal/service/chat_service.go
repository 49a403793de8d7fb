package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chatrelay-backend/internal/adapter"
	"chatrelay-backend/internal/browser"
	"chatrelay-backend/internal/metrics"
	"chatrelay-backend/internal/model"
	"chatrelay-backend/internal/relay"
	"chatrelay-backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrExecution wraps every failure surfaced by Execute and ExecuteStreaming.
	ErrExecution         = errors.New("API call exception")
	ErrUpstreamHTTP      = errors.New("upstream returned non-success status")
	ErrUpstreamTransport = errors.New("upstream request failed")
)

const (
	modeComplete = "complete"
	modeStream   = "stream"
)

type SessionPool interface {
	Init(ctx context.Context) error
	Acquire(ctx context.Context) (*browser.Session, error)
	Release(session *browser.Session)
}

type CredentialSource interface {
	Refresh(ctx context.Context) bool
	Snapshot() model.Credential
}

type Options struct {
	DefaultModel string
	UpstreamPath string
	FallbackText string
}

// ChatService runs chat requests against the upstream from inside a browser
// session. Each call holds its own session for its whole lifetime.
type ChatService struct {
	pool    SessionPool
	creds   CredentialSource
	options Options
	log     *logrus.Entry
}

func NewChatService(pool SessionPool, creds CredentialSource, options Options) *ChatService {
	if options.UpstreamPath == "" {
		options.UpstreamPath = "/api/chat"
	}
	if options.FallbackText == "" {
		options.FallbackText = adapter.DefaultFallback
	}
	return &ChatService{
		pool:    pool,
		creds:   creds,
		options: options,
		log:     logger.WithComponent("chat-service"),
	}
}

type callParams struct {
	modelName string
	requestID string
	headers   map[string]string
	body      string
}

type fetchResult struct {
	Status int    `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}

// Execute sends messages upstream and returns the full reply text. A reply
// without any text yields the configured fallback.
func (s *ChatService) Execute(ctx context.Context, messages []model.ChatMessage, modelName, requestID string) (content string, err error) {
	call, err := s.prepare(ctx, messages, modelName, requestID, false)
	if err != nil {
		return "", err
	}

	session, err := s.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExecution, err)
	}
	defer s.pool.Release(session)

	started := time.Now()
	defer func() { metrics.RecordUpstream(modeComplete, err, started) }()

	raw, err := session.EvaluateString(ctx, chatScript, call.scriptArg(""))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExecution, transportError(err))
	}

	var res fetchResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return "", fmt.Errorf("%w: %w", ErrExecution, transportError(err))
	}
	if res.Error != "" {
		return "", fmt.Errorf("%w: %w", ErrExecution, transportError(errors.New(res.Error)))
	}
	if res.Status != http.StatusOK {
		return "", fmt.Errorf("%w: %w", ErrExecution, httpError(res.Status))
	}

	content = adapter.WithFallback(adapter.CollectDeltas(res.Text), s.options.FallbackText)
	s.log.WithFields(logrus.Fields{
		"request": call.requestID,
		"model":   call.modelName,
		"length":  len(content),
	}).Info("completion finished")
	return content, nil
}

// ExecuteStreaming sends messages upstream and yields text fragments in
// arrival order. The fragment channel is closed when the stream ends; the
// error channel then holds the failure, if any, and is closed as well.
// Fragments received before a failure are always delivered first.
func (s *ChatService) ExecuteStreaming(ctx context.Context, messages []model.ChatMessage, modelName, requestID string) (<-chan string, <-chan error) {
	fragments := make(chan string)
	errc := make(chan error, 1)

	go func() {
		err := s.stream(ctx, messages, modelName, requestID, fragments)
		if err != nil {
			errc <- err
		}
		close(fragments)
		close(errc)
	}()

	return fragments, errc
}

func (s *ChatService) stream(ctx context.Context, messages []model.ChatMessage, modelName, requestID string, out chan<- string) (err error) {
	call, err := s.prepare(ctx, messages, modelName, requestID, true)
	if err != nil {
		return err
	}

	session, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecution, err)
	}
	defer s.pool.Release(session)

	started := time.Now()
	defer func() { metrics.RecordUpstream(modeStream, err, started) }()

	r := relay.New()
	binding := "streamChunk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := session.Page().ExposeFunction(binding, r.Binding()); err != nil {
		return fmt.Errorf("%w: %w", ErrExecution, transportError(err))
	}

	evalDone := make(chan struct{})
	go func() {
		defer close(evalDone)
		// Both are no-ops once the page has reported completion or failure.
		if _, err := session.EvaluateString(ctx, streamScript, call.scriptArg(binding)); err != nil {
			r.Fail(err)
			return
		}
		r.Complete()
	}()

	total := 0
	for {
		fragment, err := r.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrExecution, streamError(err))
		}

		select {
		case out <- fragment:
			total += len(fragment)
			metrics.RecordStreamFragment()
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrExecution, ctx.Err())
		}
	}

	select {
	case <-evalDone:
	case <-ctx.Done():
	}

	s.log.WithFields(logrus.Fields{
		"request": call.requestID,
		"model":   call.modelName,
		"length":  total,
	}).Info("stream finished")
	return nil
}

// prepare makes sure the browser is up, refreshes the credential on a best
// effort basis and builds the upstream request.
func (s *ChatService) prepare(ctx context.Context, messages []model.ChatMessage, modelName, requestID string, stream bool) (*callParams, error) {
	if err := s.pool.Init(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecution, err)
	}
	if !s.creds.Refresh(ctx) {
		s.log.Warn("credential refresh failed, using current token")
	}

	if modelName == "" {
		modelName = s.options.DefaultModel
	}
	if requestID == "" {
		requestID = "msg_" + uuid.NewString()
	}

	body, err := json.Marshal(model.NewUpstreamRequest(modelName, requestID, adapter.ToUpstream(messages)))
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrExecution, err)
	}
	credential, err := json.Marshal(s.creds.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("%w: encode credential: %v", ErrExecution, err)
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json, text/event-stream",
		"x-is-human":   string(credential),
		"x-method":     http.MethodPost,
		"x-path":       s.options.UpstreamPath,
	}
	if stream {
		headers["Accept"] = "text/event-stream"
	}

	s.log.WithFields(logrus.Fields{
		"request":  requestID,
		"model":    modelName,
		"messages": len(messages),
		"stream":   stream,
	}).Info("calling upstream")

	return &callParams{
		modelName: modelName,
		requestID: requestID,
		headers:   headers,
		body:      string(body),
	}, nil
}

func (c *callParams) scriptArg(binding string) map[string]interface{} {
	arg := map[string]interface{}{
		"path":    c.headers["x-path"],
		"headers": c.headers,
		"body":    c.body,
	}
	if binding != "" {
		arg["binding"] = binding
	}
	return arg
}

func httpError(status int) error {
	return fmt.Errorf("%w: HTTP %d", ErrUpstreamHTTP, status)
}

func transportError(err error) error {
	return fmt.Errorf("%w: %v", ErrUpstreamTransport, err)
}

func streamError(err error) error {
	var se *relay.StreamError
	if errors.As(err, &se) && se.Status != 0 {
		return httpError(se.Status)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return transportError(err)
}
