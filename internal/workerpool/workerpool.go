// Package workerpool provides a bounded pool for blocking work — digest
// computation and database calls — so neither stalls the event loop that
// dispatches them. It is sized independently of any particular component's
// concurrency.
package workerpool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many blocking jobs run concurrently.
type Pool struct {
	sem *semaphore.Weighted
}

// New creates a Pool that runs at most size jobs concurrently.
func New(size int64) *Pool {
	return &Pool{sem: semaphore.NewWeighted(size)}
}

// Do runs fn on the pool, blocking the caller until a slot is free or ctx
// is canceled. The caller is typically itself running on a dedicated
// goroutine (a component's event loop), so this blocking is intentional:
// it backpressures dispatch without stalling anyone else's loop.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}

// Submit runs fn asynchronously and delivers its result on the returned
// channel, for callers that want to keep servicing other work while a job
// is in flight (e.g. awaiting a digest while also draining priority events).
func (p *Pool) Submit(ctx context.Context, fn func() (interface{}, error)) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		if err := p.sem.Acquire(ctx, 1); err != nil {
			out <- Result{Err: err}
			return
		}
		defer p.sem.Release(1)
		v, err := fn()
		out <- Result{Value: v, Err: err}
	}()
	return out
}

// Result is the outcome of a Submit call.
type Result struct {
	Value interface{}
	Err   error
}
