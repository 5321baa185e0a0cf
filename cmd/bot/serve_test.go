package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type slowServer struct {
	closed atomic.Bool
	err    error
}

func (s *slowServer) Shutdown(context.Context) error {
	time.Sleep(20 * time.Millisecond)
	s.closed.Store(true)
	return s.err
}

func TestShutdownServerDrainsAfterServerStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv := &slowServer{}
	var closedBeforeDrain bool
	err := shutdownServer(context.Background(), srv, func() {
		closedBeforeDrain = srv.closed.Load()
	})
	require.NoError(t, err)
	assert.True(t, closedBeforeDrain)
}

func TestShutdownServerDrainsOnError(t *testing.T) {
	srv := &slowServer{err: context.DeadlineExceeded}
	drained := false
	err := shutdownServer(context.Background(), srv, func() { drained = true })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, drained)
}
