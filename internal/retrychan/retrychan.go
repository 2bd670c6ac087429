// Package retrychan implements the priority-retry channel pattern: a
// single-threaded consumer loop shared by every uploader in this daemon
// (intake, screenshots, saves). High-priority events (shutdown,
// online/offline, force-sync) always preempt buffered normal-priority work;
// either kind of event can ask to be retried, with backoff that is faster
// online than offline and clamped by how long the process has been running.
//
// The dispatch loop is styled after a priority-queue uploader's split
// between normal and priority uploads, generalized with Go generics since this
// daemon needs three independent instances (intake, screenshots, saves)
// rather than one upload queue.
package retrychan

import (
	"container/list"
	"context"
	"time"

	"github.com/kagehashi-labs/arcadewatchd/internal/logging"
)

// Action is the handler's verdict for one dispatched event.
type Action int

const (
	// Continue moves on to the next event; any retry counters for this
	// event's priority class are cleared.
	Continue Action = iota
	// ResetTimeout is Continue plus it also clears the *other* priority
	// class's retry counter (used by ForceSync).
	ResetTimeout
	// Halt stops the loop.
	Halt
	// Retry asks for this same event to be retried after a backoff.
	Retry
)

// Handler is implemented by each uploader-style component. Handle must not
// block on anything other than the work itself — the channel dispatches
// events strictly one at a time.
type Handler[E any] interface {
	IsOnline() bool
	IsHighPriority(e E) bool
	Handle(ctx context.Context, e E) Action
}

const (
	defaultOnlineBase  = 5 * time.Second
	defaultOfflineBase = 30 * time.Second
	maxRetryCount      = 5
)

// nextRetryCount increments a retry counter, capping it at maxRetryCount.
func nextRetryCount(cur int) int {
	cur++
	if cur > maxRetryCount {
		return maxRetryCount
	}
	return cur
}

// clampWait computes retries*base, then clamps it to elapsed so a process
// that just started never waits longer than it has been alive — backoff
// ramps up with uptime instead of stalling a freshly started daemon.
func clampWait(retries int, base, elapsed time.Duration) time.Duration {
	wait := time.Duration(retries) * base
	if wait > elapsed {
		wait = elapsed
	}
	return wait
}

// Channel is one priority-retry queue instance over event type E.
type Channel[E any] struct {
	in      chan E
	handler Handler[E]
	log     logging.Logger

	onlineBase, offlineBase time.Duration
	now                     func() time.Time
}

// Option configures a Channel at construction. Most callers need none of
// these; they exist so tests can shrink the backoff bases and substitute a
// deterministic clock instead of sleeping in real time.
type Option func(*channelOptions)

type channelOptions struct {
	onlineBase, offlineBase time.Duration
	now                     func() time.Time
}

// WithBackoffBases overrides the online/offline per-retry backoff unit.
func WithBackoffBases(online, offline time.Duration) Option {
	return func(o *channelOptions) {
		o.onlineBase = online
		o.offlineBase = offline
	}
}

// WithClock overrides the clock used for the elapsed-since-start clamp.
func WithClock(now func() time.Time) Option {
	return func(o *channelOptions) { o.now = now }
}

// New creates a Channel. bufferSize bounds the input queue; pick something
// generously larger than the expected burst size, since this queue is
// meant to behave as unbounded and a full buffer would make Send block.
func New[E any](handler Handler[E], bufferSize int, component string, opts ...Option) *Channel[E] {
	o := channelOptions{
		onlineBase:  defaultOnlineBase,
		offlineBase: defaultOfflineBase,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Channel[E]{
		in:          make(chan E, bufferSize),
		handler:     handler,
		log:         logging.Named(component),
		onlineBase:  o.onlineBase,
		offlineBase: o.offlineBase,
		now:         o.now,
	}
}

// Send enqueues an event for processing. It never blocks unless the buffer
// configured in New is exhausted.
func (c *Channel[E]) Send(e E) {
	c.in <- e
}

// Run drives the loop until the handler returns Halt or ctx is canceled.
// Two independent retry counters are kept, one for the single in-flight
// high-priority event and one for the head of the normal-priority buffer;
// backoff for each is retries*base seconds, online base 5s and offline base
// 30s, clamped to never exceed how long the process has been running.
func (c *Channel[E]) Run(ctx context.Context) {
	start := c.now()
	buffer := list.New()

	var priorityEvent *E
	var priorityRetry, normalRetry int
	haveRetryDeadline := false
	var onlineDeadline, offlineDeadline time.Time

	backoff := func(retries int) time.Duration {
		base := c.onlineBase
		if !c.handler.IsOnline() {
			base = c.offlineBase
		}
		return clampWait(retries, base, c.now().Sub(start))
	}

	for {
		if priorityEvent != nil {
			action := c.handler.Handle(ctx, *priorityEvent)
			switch action {
			case Continue:
				priorityRetry = 0
				priorityEvent = nil
			case ResetTimeout:
				priorityRetry = 0
				normalRetry = 0
				priorityEvent = nil
			case Halt:
				return
			case Retry:
				priorityRetry = nextRetryCount(priorityRetry)
				wait := backoff(priorityRetry)
				c.log.Debug().Dur("wait", wait).Msg("retrying priority event")
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return
				}
				continue
			}
		}

		var event E
		haveEvent := false

		switch {
		case buffer.Len() == 0:
			select {
			case e, ok := <-c.in:
				if !ok {
					return
				}
				event, haveEvent = e, true
			case <-ctx.Done():
				return
			}

		case haveRetryDeadline:
			deadline := onlineDeadline
			if !c.handler.IsOnline() {
				deadline = offlineDeadline
			}
			timer := time.NewTimer(time.Until(deadline))
			select {
			case e, ok := <-c.in:
				timer.Stop()
				if !ok {
					return
				}
				event, haveEvent = e, true
			case <-timer.C:
				haveRetryDeadline = false
			case <-ctx.Done():
				timer.Stop()
				return
			}

		default:
			select {
			case e, ok := <-c.in:
				if !ok {
					return
				}
				event, haveEvent = e, true
			default:
			}
		}

		if haveEvent {
			if c.handler.IsHighPriority(event) {
				action := c.handler.Handle(ctx, event)
				switch action {
				case Continue:
					priorityRetry = 0
				case ResetTimeout:
					priorityRetry = 0
					normalRetry = 0
				case Halt:
					return
				case Retry:
					priorityRetry = nextRetryCount(priorityRetry)
					wait := backoff(priorityRetry)
					c.log.Debug().Dur("wait", wait).Msg("retrying priority event")
					select {
					case <-time.After(wait):
					case <-ctx.Done():
						return
					}
					priorityEvent = &event
				}
			} else {
				buffer.PushBack(event)
			}
			continue
		}

		if front := buffer.Front(); front != nil {
			event := front.Value.(E)
			buffer.Remove(front)

			action := c.handler.Handle(ctx, event)
			switch action {
			case Continue:
				normalRetry = 0
			case ResetTimeout:
				normalRetry = 0
			case Halt:
				return
			case Retry:
				buffer.PushFront(event)
				normalRetry = nextRetryCount(normalRetry)

				elapsed := c.now().Sub(start)
				onlineWait := clampWait(normalRetry, c.onlineBase, elapsed)
				offlineWait := clampWait(normalRetry, c.offlineBase, elapsed)

				now := c.now()
				onlineDeadline = now.Add(onlineWait)
				offlineDeadline = now.Add(offlineWait)
				haveRetryDeadline = true

				c.log.Debug().
					Dur("online_wait", onlineWait).
					Dur("offline_wait", offlineWait).
					Msg("retrying normal event")
			}
		}
	}
}
