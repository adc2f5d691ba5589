// Package testutil provides testing utilities for session pool tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Iron-Ham/sessionpool/internal/worker"
)

// FakeSession is a scriptable worker.Session for tests. Every operation
// can be made to fail, hang, or take a fixed amount of time, and all calls
// are counted.
//
// The zero value behaves like a healthy session. It is safe for
// concurrent use.
type FakeSession struct {
	mu sync.Mutex

	// Scripted outcomes. A nil error means success.
	OpenErr  error
	Degraded bool
	PingErr  error
	SendErr  error
	RenewErr error
	CloseErr error

	// PingDelay makes Ping take this long (or return early on context
	// cancellation). Useful for exercising probe timeouts.
	PingDelay time.Duration

	// Hang, when set, makes Ping block until the context is done.
	Hang bool

	opens  int
	pings  int
	sends  int
	renews int
	closes int
	closed bool
}

// NewFakeFactory returns a worker.Factory that hands out the given
// sessions in order, one per created instance. Creating more instances
// than sessions provided panics, which surfaces miswired tests early.
func NewFakeFactory(sessions ...*FakeSession) worker.Factory {
	var mu sync.Mutex
	next := 0
	return func(instanceID string) worker.Session {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(sessions) {
			panic(fmt.Sprintf("fake factory exhausted after %d sessions (instance %s)", len(sessions), instanceID))
		}
		s := sessions[next]
		next++
		return s
	}
}

// NewHealthyFactory returns a worker.Factory producing an unlimited supply
// of healthy fake sessions.
func NewHealthyFactory() worker.Factory {
	return func(string) worker.Session { return &FakeSession{} }
}

// Open implements worker.Session.
func (s *FakeSession) Open(ctx context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	if s.OpenErr != nil {
		return "", false, s.OpenErr
	}
	return fmt.Sprintf("fake-session-%d", s.opens), s.Degraded, nil
}

// Ping implements worker.Session.
func (s *FakeSession) Ping(ctx context.Context) error {
	s.mu.Lock()
	s.pings++
	err := s.PingErr
	delay := s.PingDelay
	hang := s.Hang
	s.mu.Unlock()

	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Send implements worker.Session.
func (s *FakeSession) Send(ctx context.Context, content string, attachments []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends++
	return s.SendErr
}

// Renew implements worker.Session.
func (s *FakeSession) Renew(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renews++
	if s.RenewErr != nil {
		return "", s.RenewErr
	}
	return fmt.Sprintf("renewed-session-%d", s.renews), nil
}

// Close implements worker.Session.
func (s *FakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	s.closed = true
	return s.CloseErr
}

// SetPingErr changes the scripted Ping outcome mid-test.
func (s *FakeSession) SetPingErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PingErr = err
}

// Opens returns how many times Open was called.
func (s *FakeSession) Opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

// Pings returns how many times Ping was called.
func (s *FakeSession) Pings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pings
}

// Sends returns how many times Send was called.
func (s *FakeSession) Sends() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sends
}

// Renews returns how many times Renew was called.
func (s *FakeSession) Renews() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renews
}

// Closed reports whether Close has been called.
func (s *FakeSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
