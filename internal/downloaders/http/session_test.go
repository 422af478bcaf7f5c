package mthttp

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionDeliverWhileFlowing(t *testing.T) {
	s := NewSession()
	called := false
	require.NoError(t, s.Deliver(context.Background(), func() error {
		called = true
		return nil
	}))
	assert.True(t, called)
}

func TestSessionSuspendBlocksDelivery(t *testing.T) {
	s := NewSession()
	s.SuspendReceive()
	assert.True(t, s.Paused())

	var delivered atomic.Bool
	done := make(chan error, 1)
	go func() {
		done <- s.Deliver(context.Background(), func() error {
			delivered.Store(true)
			return nil
		})
	}()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, delivered.Load(), "nothing may be delivered while suspended")

	s.ResumeReceive()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		require.FailNow(t, "delivery not released by resume")
	}
	assert.True(t, delivered.Load())
	assert.False(t, s.Paused())
}

func TestSessionSuspendWaitsForInflightDelivery(t *testing.T) {
	s := NewSession()
	entered := make(chan struct{})
	release := make(chan struct{})
	go s.Deliver(context.Background(), func() error {
		close(entered)
		<-release
		return nil
	})
	<-entered

	suspended := make(chan struct{})
	go func() {
		s.SuspendReceive()
		close(suspended)
	}()
	select {
	case <-suspended:
		require.FailNow(t, "suspend returned during an in-flight delivery")
	case <-time.After(30 * time.Millisecond):
	}
	close(release)
	<-suspended
}

func TestSessionDeliverCancelledWhilePaused(t *testing.T) {
	s := NewSession()
	s.SuspendReceive()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Deliver(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type closeRecorder struct{ closed atomic.Bool }

func (c *closeRecorder) Close() error {
	c.closed.Store(true)
	return nil
}

func TestSessionAbort(t *testing.T) {
	s := NewSession()
	body := &closeRecorder{}
	detach, err := s.attach(body)
	require.NoError(t, err)
	defer detach()

	s.SuspendReceive()
	s.Abort()
	assert.True(t, body.closed.Load())
	assert.ErrorIs(t, s.Deliver(context.Background(), func() error { return nil }), ErrSessionAborted)

	late := &closeRecorder{}
	_, err = s.attach(late)
	assert.ErrorIs(t, err, ErrSessionAborted)
	assert.True(t, late.closed.Load())
}

var _ io.Closer = (*closeRecorder)(nil)
