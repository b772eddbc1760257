package retry

import (
	"context"
	"sync"
	"time"
)

// Limiter admits at most `limit` concurrent calls per window. A full batch
// must finish, and the window delay elapse, before the next batch is admitted.
// Used in front of quota-enforcing upstreams (block explorer, trace endpoint).
type Limiter struct {
	limit  int
	window time.Duration
	reqs   chan *ticket
}

type ticket struct {
	release chan struct{}
	done    chan struct{}
}

func NewLimiter(limit int, window time.Duration) *Limiter {
	l := &Limiter{limit: limit, window: window, reqs: make(chan *ticket, 1024)}
	go l.dispatch()
	return l
}

func (l *Limiter) dispatch() {
	for {
		batch := make([]*ticket, 0, l.limit)
		batch = append(batch, <-l.reqs)
	fill:
		for len(batch) < l.limit {
			select {
			case t := <-l.reqs:
				batch = append(batch, t)
			default:
				break fill
			}
		}
		for _, t := range batch {
			close(t.release)
		}
		for _, t := range batch {
			<-t.done
		}
		time.Sleep(l.window)
	}
}

// Acquire blocks until the limiter admits the caller. The returned release
// func must be called once the guarded work is finished.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	t := &ticket{release: make(chan struct{}), done: make(chan struct{})}
	select {
	case l.reqs <- t:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case <-t.release:
		var once sync.Once
		return func() { once.Do(func() { close(t.done) }) }, nil
	case <-ctx.Done():
		// keep the dispatcher from blocking on an abandoned ticket
		go func() { <-t.release; close(t.done) }()
		return nil, ctx.Err()
	}
}

// Run is a convenience wrapper around Acquire for single calls.
func (l *Limiter) Run(ctx context.Context, fn func(context.Context) error) error {
	release, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}
