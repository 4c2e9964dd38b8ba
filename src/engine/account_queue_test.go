package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountQueueSerializesPerAccount(t *testing.T) {
	q := newAccountQueue()
	defer q.Close()

	var inFlight, peak, runs int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := q.Do(context.Background(), "GDISTRIBUTOR", func(context.Context) error {
				n := atomic.AddInt32(&inFlight, 1)
				defer atomic.AddInt32(&inFlight, -1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&runs, 1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(20), runs)
	assert.Equal(t, int32(1), peak)
}

func TestAccountQueueAccountsRunIndependently(t *testing.T) {
	q := newAccountQueue()
	defer q.Close()

	release := make(chan struct{})
	blocked := make(chan error, 1)
	go func() {
		blocked <- q.Do(context.Background(), "GFUNDING", func(context.Context) error {
			<-release
			return nil
		})
	}()

	// GDISTRIBUTOR is not stuck behind the blocked funding job.
	done := make(chan error, 1)
	go func() {
		done <- q.Do(context.Background(), "GDISTRIBUTOR", func(context.Context) error { return nil })
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("distributor job waited on the funding account")
	}

	close(release)
	require.NoError(t, <-blocked)
}

func TestAccountQueueHonoursContextAndClose(t *testing.T) {
	q := newAccountQueue()

	release := make(chan struct{})
	go func() {
		_ = q.Do(context.Background(), "GFUNDING", func(context.Context) error {
			<-release
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ran := false
	err := q.Do(ctx, "GFUNDING", func(context.Context) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrNotSubmitted)

	close(release)
	q.Close()

	assert.False(t, ran)

	err = q.Do(context.Background(), "GFUNDING", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrNotSubmitted)
}
