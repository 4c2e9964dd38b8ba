package engine

import (
	"context"
	"fmt"
	"sync"
)

type queuedJob struct {
	ctx  context.Context
	run  func(ctx context.Context) error
	done chan error
}

// accountQueue serializes ledger submissions per source account: one writer goroutine
// per account, so at most one submission per account is outstanding at a time.
type accountQueue struct {
	mu      sync.Mutex
	writers map[string]chan queuedJob
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func newAccountQueue() *accountQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &accountQueue{
		writers: make(map[string]chan queuedJob),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (q *accountQueue) writer(account string) (chan queuedJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.ctx.Err(); err != nil {
		return nil, err
	}
	ch, ok := q.writers[account]
	if ok {
		return ch, nil
	}

	ch = make(chan queuedJob)
	q.writers[account] = ch
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case <-q.ctx.Done():
				return
			case job := <-ch:
				if err := job.ctx.Err(); err != nil {
					job.done <- fmt.Errorf("%w: %w", ErrNotSubmitted, err)
					continue
				}
				job.done <- job.run(job.ctx)
			}
		}
	}()
	return ch, nil
}

// Do runs fn on account's writer and waits for its result. Errors wrapping ErrNotSubmitted
// mean fn never ran.
func (q *accountQueue) Do(ctx context.Context, account string, fn func(ctx context.Context) error) error {
	ch, err := q.writer(account)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotSubmitted, err)
	}

	job := queuedJob{ctx: ctx, run: fn, done: make(chan error, 1)}
	select {
	case ch <- job:
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrNotSubmitted, ctx.Err())
	case <-q.ctx.Done():
		return fmt.Errorf("%w: %w", ErrNotSubmitted, q.ctx.Err())
	}

	// Once accepted the job runs to completion, so wait for it even if ctx ends.
	return <-job.done
}

// Close stops every writer after its current job.
func (q *accountQueue) Close() {
	q.cancel()
	q.wg.Wait()
}
