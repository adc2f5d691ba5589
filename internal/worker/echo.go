package worker

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Iron-Ham/sessionpool/internal/errors"
)

var errClosed = errors.New("session closed")

// EchoSession is a minimal Session driver that accepts everything and keeps
// no external resources. It backs the runnable binary and local smoke
// testing; real deployments plug in their own driver via Factory.
type EchoSession struct {
	mu     sync.Mutex
	closed bool
}

// NewEchoFactory returns a Factory producing echo sessions.
func NewEchoFactory() Factory {
	return func(string) Session { return &EchoSession{} }
}

// Open establishes the session with a fresh identifier.
func (s *EchoSession) Open(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	return uuid.NewString(), false, nil
}

// Ping reports liveness; an echo session is live until closed.
func (s *EchoSession) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	return nil
}

// Send accepts any payload.
func (s *EchoSession) Send(ctx context.Context, content string, attachments []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	return nil
}

// Renew issues a fresh session identifier.
func (s *EchoSession) Renew(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", errClosed
	}
	return uuid.NewString(), nil
}

// Close marks the session closed.
func (s *EchoSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
