package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"sidekick-relay/internal/backend"
	"sidekick-relay/internal/config"
	"sidekick-relay/internal/history"
	"sidekick-relay/internal/models"
	"sidekick-relay/internal/relay"
)

// oneShot runs a single completion through a private coordinator and copies
// the deltas to out as they arrive. Cancelling ctx stops the generation.
func oneShot(ctx context.Context, cfg config.Config, client relay.Backend, desc models.RequestDescriptor, out io.Writer) (string, error) {
	coord, err := relay.NewCoordinator(ctx, client, history.NewStore(cfg.Relay.HistoryLimit), relay.NewHub(cfg.Relay.SubscriberBuffer, nil))
	if err != nil {
		return "", err
	}
	sub := coord.Subscribe()
	defer sub.Close()

	session, err := coord.Start(desc)
	if err != nil {
		return "", err
	}

	for ev := range sub.Events() {
		if ev.SessionID != session.ID() {
			continue
		}
		switch ev.Type {
		case models.EventChunk:
			if _, err := io.WriteString(out, ev.Content); err != nil {
				coord.Cancel()
				return "", fmt.Errorf("write output: %w", err)
			}
		case models.EventError:
			return session.Text(), errors.New(ev.Error)
		case models.EventEnd:
			if session.State() == relay.StateCancelled {
				return session.Text(), context.Canceled
			}
			return session.Text(), nil
		}
	}
	return session.Text(), errors.New("event stream closed before the session finished")
}

func newBackendClient(cfg config.Config) (*backend.Client, error) {
	return backend.New(backend.NewHTTPClient(backend.Options{
		DialTimeout:           cfg.Backend.DialTimeout,
		ResponseHeaderTimeout: cfg.Backend.ResponseHeaderTimeout,
	}))
}
