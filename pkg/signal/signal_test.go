package signal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShutdownOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := WaitForShutdown(ctx, time.Second, func() error {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, called)
}

func TestShutdownErrorIsReturned(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WaitForShutdown(ctx, time.Second, func() error { return errors.New("stuck") })
	assert.EqualError(t, err, "stuck")
}

func TestShutdownTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	release := make(chan struct{})
	defer close(release)
	err := WaitForShutdown(ctx, 20*time.Millisecond, func() error {
		<-release
		return nil
	})
	assert.ErrorContains(t, err, "timed out")
}
