package mthttp

import (
	"context"
	"errors"
	"io"
	"sync"
)

var ErrSessionAborted = errors.New("session aborted")

// Session is the receive side of one worker's connection. Suspending it stops
// the delivery of received bytes without tearing the connection down, and the
// same request carries on once it is resumed.
type Session struct {
	mu      sync.Mutex
	paused  bool
	resume  chan struct{}
	body    io.Closer
	aborted bool
}

func NewSession() *Session {
	return &Session{}
}

// SuspendReceive pauses delivery. It returns only after any delivery already
// in progress has finished, so no byte is counted after it returns.
func (s *Session) SuspendReceive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		s.paused = true
		s.resume = make(chan struct{})
	}
}

func (s *Session) ResumeReceive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		s.paused = false
		close(s.resume)
	}
}

func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Deliver runs fn as soon as the session is flowing. While suspended it
// blocks until resumed or until ctx is done.
func (s *Session) Deliver(ctx context.Context, fn func() error) error {
	for {
		s.mu.Lock()
		if s.aborted {
			s.mu.Unlock()
			return ErrSessionAborted
		}
		if !s.paused {
			err := fn()
			s.mu.Unlock()
			return err
		}
		resume := s.resume
		s.mu.Unlock()
		select {
		case <-resume:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// attach registers the body of the in-flight response so Abort can close it.
func (s *Session) attach(body io.Closer) (detach func(), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aborted {
		body.Close()
		return func() {}, ErrSessionAborted
	}
	s.body = body
	return func() {
		s.mu.Lock()
		if s.body == body {
			s.body = nil
		}
		s.mu.Unlock()
	}, nil
}

// Abort forcibly closes the in-flight response, making its next read fail,
// and refuses any later attempt on this session.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = true
	if s.body != nil {
		s.body.Close()
		s.body = nil
	}
	if s.paused {
		s.paused = false
		close(s.resume)
	}
}
