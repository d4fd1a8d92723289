package analytics

import (
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

const callTimeout = 5 * time.Second

type job struct {
	name    string
	run     func(ctx context.Context) error
	done    func(error)
	barrier chan struct{}
}

// Emitter sends analytics calls fire-and-forget. Calls are queued and sent
// by a single worker in order; failures are logged and never reach callers.
// An emitter without a client drops everything.
type Emitter struct {
	client Client
	logger *zap.Logger
	now    func() time.Time

	queue chan job

	// mu orders sends on queue against Close
	mu          sync.RWMutex
	closed      bool
	closing     chan struct{}
	stopped     chan struct{}
	releaseOnce sync.Once
	releaseErr  error
}

// NewEmitter starts the worker. Pass a nil client to disable tracking.
func NewEmitter(client Client, logger *zap.Logger, buffer int) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 1
	}
	e := &Emitter{
		client:  client,
		logger:  logger,
		now:     time.Now,
		queue:   make(chan job, buffer),
		closing: make(chan struct{}),
		stopped: make(chan struct{}),
	}
	if client == nil {
		logger.Warn("analytics client not configured, tracking disabled")
		close(e.stopped)
		return e
	}
	go e.run()
	return e
}

// Enabled reports whether calls reach a collaborator.
func (e *Emitter) Enabled() bool {
	return e != nil && e.client != nil
}

func (e *Emitter) run() {
	defer close(e.stopped)
	for {
		select {
		case j := <-e.queue:
			e.handle(j)
		case <-e.closing:
			for {
				select {
				case j := <-e.queue:
					e.handle(j)
				default:
					return
				}
			}
		}
	}
}

func (e *Emitter) handle(j job) {
	if j.barrier != nil {
		close(j.barrier)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	err := j.run(ctx)
	cancel()
	if err != nil {
		e.logger.Error("analytics call failed", zap.String("call", j.name), zap.Error(err))
	}
	if j.done != nil {
		j.done(err)
	}
}

func (e *Emitter) enqueue(j job) {
	if !e.Enabled() {
		return
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.logger.Warn("analytics emitter closed, dropping call", zap.String("call", j.name))
		return
	}
	select {
	case e.queue <- j:
	default:
		e.logger.Warn("analytics queue full, dropping call", zap.String("call", j.name))
	}
}

// Track queues an event. done, when given, runs after the call finished.
func (e *Emitter) Track(anonymousID, userID, event string, props Properties, done ...func(error)) {
	call := TrackCall{AnonymousID: anonymousID, UserID: userID, Event: event, Properties: props}
	if e.Enabled() {
		call.Timestamp = e.now()
	}
	e.enqueue(job{
		name: "track " + event,
		run:  func(ctx context.Context) error { return e.client.Track(ctx, call) },
		done: firstDone(done),
	})
}

// Identify queues an identity update.
func (e *Emitter) Identify(anonymousID, userID string, traits Traits, done ...func(error)) {
	call := IdentifyCall{AnonymousID: anonymousID, UserID: userID, Traits: traits}
	if e.Enabled() {
		call.Timestamp = e.now()
	}
	e.enqueue(job{
		name: "identify",
		run:  func(ctx context.Context) error { return e.client.Identify(ctx, call) },
		done: firstDone(done),
	})
}

// Reset queues forgetting the anonymous identity.
func (e *Emitter) Reset(anonymousID string) {
	e.enqueue(job{
		name: "reset",
		run:  func(ctx context.Context) error { return e.client.Reset(ctx, anonymousID) },
	})
}

// Flush waits until every call queued before it has been sent.
func (e *Emitter) Flush(ctx context.Context) error {
	if !e.Enabled() {
		return nil
	}
	barrier := make(chan struct{})
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return e.wait(ctx)
	}
	select {
	case e.queue <- job{name: "flush", barrier: barrier}:
		e.mu.RUnlock()
	case <-ctx.Done():
		e.mu.RUnlock()
		return ctx.Err()
	}
	select {
	case <-barrier:
		return nil
	case <-e.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting calls, sends what is queued and stops the worker.
// A client that is an io.Closer is closed once the queue is drained.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.closing)
	}
	e.mu.Unlock()

	if err := e.wait(ctx); err != nil {
		return err
	}
	e.releaseOnce.Do(func() {
		if c, ok := e.client.(io.Closer); ok {
			e.releaseErr = c.Close()
		}
	})
	return e.releaseErr
}

func (e *Emitter) wait(ctx context.Context) error {
	select {
	case <-e.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func firstDone(done []func(error)) func(error) {
	if len(done) == 0 {
		return nil
	}
	return done[0]
}
