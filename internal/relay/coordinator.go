package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/google/uuid"

	"sidekick-relay/internal/history"
	"sidekick-relay/internal/metrics"
	"sidekick-relay/internal/models"
	"sidekick-relay/internal/translator"
)

// Backend opens a streaming response for a wire request. The returned body
// must abort pending reads when ctx is cancelled.
type Backend interface {
	Open(ctx context.Context, req translator.WireRequest) (io.ReadCloser, error)
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithMetrics records session lifecycle metrics.
func WithMetrics(m *metrics.Relay) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(fn func() string) Option {
	return func(c *Coordinator) {
		c.newID = fn
	}
}

// Coordinator owns the relay's process-wide state: the single active session,
// the conversation history and the event hub.
type Coordinator struct {
	ctx      context.Context
	backend  Backend
	history  *history.Store
	hub      *Hub
	metrics  *metrics.Relay
	validate *validator.Validate
	newID    func() string

	mu       sync.Mutex
	active   *Session
	closed   bool
	inflight sync.WaitGroup
}

// NewCoordinator wires a coordinator. Sessions derive their context from ctx,
// so cancelling it cancels any session in flight.
func NewCoordinator(ctx context.Context, backend Backend, store *history.Store, hub *Hub, opts ...Option) (*Coordinator, error) {
	if backend == nil {
		return nil, errors.New("backend must not be nil")
	}
	if store == nil {
		return nil, errors.New("history store must not be nil")
	}
	if hub == nil {
		return nil, errors.New("hub must not be nil")
	}

	validate, err := newValidator()
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		ctx:      ctx,
		backend:  backend,
		history:  store,
		hub:      hub,
		validate: validate,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start validates desc and launches a session for it. It fails with
// ErrSessionActive while another session is in flight and with
// ErrShuttingDown once Shutdown has been called; an invalid descriptor is
// reported both as the returned error and as a single Error event.
func (c *Coordinator) Start(desc models.RequestDescriptor) (*Session, error) {
	if err := c.validateDescriptor(desc); err != nil {
		id := c.newID()
		c.metrics.SessionRejected(string(desc.Protocol.Normalize()))
		slog.Warn("rejected request descriptor", "session_id", id, "error", err)
		c.hub.Publish(models.ErrorEvent(id, err.Error()))
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if c.active != nil {
		activeID := c.active.id
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionActive, activeID)
	}
	s := newSession(c.ctx, c.newID(), desc)
	c.active = s
	c.inflight.Add(1)
	c.mu.Unlock()

	c.metrics.SessionStarted()
	slog.Info("session started", s.logAttrs()...)

	go s.run(c)
	return s, nil
}

// Cancel aborts the active session, if any, and reports whether one was
// running. The tracked handle is cleared before the abort so a late cancel
// cannot reach a later session.
func (c *Coordinator) Cancel() bool {
	c.mu.Lock()
	s := c.active
	c.active = nil
	c.mu.Unlock()

	if s == nil {
		return false
	}
	slog.Info("cancelling session", "session_id", s.id)
	s.cancel()
	return true
}

// Active returns the session in flight, or nil.
func (c *Coordinator) Active() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Shutdown refuses further starts, cancels the active session and waits
// until every started session has published its terminal event.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.Cancel()

	drained := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for sessions to finish: %w", ctx.Err())
	}
}

// Subscribe attaches a new event subscriber.
func (c *Coordinator) Subscribe() *Subscription {
	return c.hub.Subscribe()
}

// ClearHistory removes every session key's history.
func (c *Coordinator) ClearHistory() {
	c.history.Clear()
	slog.Info("history cleared")
}

// AppendHistory appends one turn to the default session's history, bypassing
// the completion flow.
func (c *Coordinator) AppendHistory(turn models.Turn) error {
	if !turn.Role.Valid() {
		return fmt.Errorf("%w: role %q", ErrInvalidTurn, turn.Role)
	}
	c.history.Append(models.DefaultSessionKey, turn)
	return nil
}

// History returns a snapshot of the history stored for key.
func (c *Coordinator) History(key string) []models.Turn {
	if strings.TrimSpace(key) == "" {
		key = models.DefaultSessionKey
	}
	return c.history.Get(key)
}

// finish releases the active handle, then publishes the session's single
// terminal event. Releasing first lets a subscriber start the next session
// as soon as it observes the end of this one.
func (c *Coordinator) finish(s *Session, state State, err error) {
	c.mu.Lock()
	if c.active == s {
		c.active = nil
	}
	c.mu.Unlock()

	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.setState(state)
	s.cancel()

	ev, outcome := s.terminalEvent(state, err)
	c.metrics.SessionFinished(string(s.desc.Protocol.Normalize()), outcome)
	logOutcome(s, state, err)

	c.hub.Publish(ev)
	close(s.done)
	c.inflight.Done()
}

func newValidator() (*validator.Validate, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		return nil, fmt.Errorf("register notblank validation: %w", err)
	}
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v, nil
}

func (c *Coordinator) validateDescriptor(desc models.RequestDescriptor) error {
	err := c.validate.Struct(desc)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "notblank":
			problems = append(problems, fe.Field()+" must not be blank")
		case "oneof":
			problems = append(problems, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		default:
			problems = append(problems, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidDescriptor, strings.Join(problems, "; "))
}
