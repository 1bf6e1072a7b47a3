package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoalescerSingleFlight(t *testing.T) {
	c := NewCoalescer()

	var calls atomic.Int32
	release := make(chan struct{})
	factory := func() (any, error) {
		calls.Add(1)
		<-release
		return "payload", nil
	}

	const n = 16
	var wg sync.WaitGroup
	results := make([]any, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := c.Do(context.Background(), "clan:#AAA", factory)
			results[i], errs[i] = v, err
		}(i)
	}

	// let every goroutine reach the coalescer before settling the fetch
	for c.Pending() == 0 {
		time.Sleep(time.Millisecond)
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "payload", results[i])
	}
	assert.Equal(t, 0, c.Pending())
}

func TestCoalescerSharedFailure(t *testing.T) {
	c := NewCoalescer()
	wantErr := errors.New("upstream down")

	release := make(chan struct{})
	go func() {
		_, _, _ = c.Do(context.Background(), "k", func() (any, error) {
			<-release
			return nil, wantErr
		})
	}()
	for c.Pending() == 0 {
		time.Sleep(time.Millisecond)
	}

	done := make(chan error, 1)
	go func() {
		_, shared, err := c.Do(context.Background(), "k", func() (any, error) {
			t.Error("second factory must not run")
			return nil, nil
		})
		assert.True(t, shared)
		done <- err
	}()

	close(release)
	assert.ErrorIs(t, <-done, wantErr)

	// pending entry is gone, a retry invokes the factory again
	v, shared, err := c.Do(context.Background(), "k", func() (any, error) { return 42, nil })
	require.NoError(t, err)
	assert.False(t, shared)
	assert.Equal(t, 42, v)
}

func TestCoalescerWaiterCancellation(t *testing.T) {
	c := NewCoalescer()

	release := make(chan struct{})
	go func() {
		_, _, _ = c.Do(context.Background(), "k", func() (any, error) {
			<-release
			return "late", nil
		})
	}()
	for c.Pending() == 0 {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := c.Do(ctx, "k", func() (any, error) { return nil, nil })
	assert.ErrorIs(t, err, context.Canceled)

	// leader is unaffected by the waiter's cancellation
	close(release)
	for c.Pending() != 0 {
		time.Sleep(time.Millisecond)
	}
}
