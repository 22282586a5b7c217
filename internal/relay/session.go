package relay

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sidekick-relay/internal/metrics"
	"sidekick-relay/internal/models"
	"sidekick-relay/internal/stream"
	"sidekick-relay/internal/translator"
)

// State is a completion session's lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateBuilding
	StateStreaming
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuilding:
		return "building"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Session is one in-flight request/response interaction with the backend.
type Session struct {
	id      string
	desc    models.RequestDescriptor
	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time
	done    chan struct{}
	state   atomic.Int32

	mu   sync.Mutex
	text string
	err  error
}

func newSession(ctx context.Context, id string, desc models.RequestDescriptor) *Session {
	ctx, cancel := context.WithCancel(ctx)
	return &Session{
		id:      id,
		desc:    desc,
		ctx:     ctx,
		cancel:  cancel,
		started: time.Now(),
		done:    make(chan struct{}),
	}
}

// ID returns the identifier carried by every event of this session.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Done is closed after the terminal event has been published.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Text returns the content accumulated so far.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// Err returns the failure that ended the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}

func (s *Session) run(c *Coordinator) {
	s.setState(StateBuilding)
	key := s.desc.HistoryKey()

	var snapshot []models.Turn
	if s.desc.IncludeHistory {
		snapshot = c.history.Get(key)
	}

	wire, err := translator.Build(s.desc, snapshot)
	if err != nil {
		c.finish(s, StateFailed, err)
		return
	}

	body, err := c.backend.Open(s.ctx, wire)
	if err != nil {
		if s.ctx.Err() != nil {
			c.finish(s, StateCancelled, nil)
			return
		}
		c.finish(s, StateFailed, err)
		return
	}
	defer body.Close()

	s.setState(StateStreaming)

	var accumulated strings.Builder
	for delta, err := range stream.Deltas(body) {
		if err != nil {
			if s.ctx.Err() != nil {
				c.finish(s, StateCancelled, nil)
				return
			}
			c.finish(s, StateFailed, err)
			return
		}

		if accumulated.Len() == 0 {
			c.metrics.FirstChunk(time.Since(s.started))
		}
		accumulated.WriteString(delta)
		s.mu.Lock()
		s.text = accumulated.String()
		s.mu.Unlock()

		c.metrics.Chunk()
		c.hub.Publish(models.ChunkEvent(s.id, delta))
	}

	if s.ctx.Err() != nil {
		c.finish(s, StateCancelled, nil)
		return
	}

	if s.desc.IncludeHistory && accumulated.Len() > 0 {
		c.history.Append(key,
			models.Turn{Role: models.RoleUser, Content: s.desc.Prompt},
			models.Turn{Role: models.RoleAssistant, Content: accumulated.String()},
		)
	}
	c.finish(s, StateCompleted, nil)
}

// terminalEvent maps the final state to the event subscribers observe.
func (s *Session) terminalEvent(state State, err error) (models.StreamEvent, metrics.Outcome) {
	switch state {
	case StateFailed:
		return models.ErrorEvent(s.id, err.Error()), metrics.OutcomeFailed
	case StateCancelled:
		return models.EndEvent(s.id), metrics.OutcomeCancelled
	default:
		return models.EndEvent(s.id), metrics.OutcomeCompleted
	}
}

func (s *Session) logAttrs() []any {
	return []any{
		"session_id", s.id,
		"protocol", string(s.desc.Protocol.Normalize()),
		"model", s.desc.Model,
		"session_key", s.desc.HistoryKey(),
	}
}

func logOutcome(s *Session, state State, err error) {
	attrs := append(s.logAttrs(),
		"state", state.String(),
		"chars", len(s.Text()),
		"duration_ms", time.Since(s.started).Milliseconds(),
	)
	if err != nil {
		slog.Warn("session failed", append(attrs, "error", err)...)
		return
	}
	slog.Info("session finished", attrs...)
}
