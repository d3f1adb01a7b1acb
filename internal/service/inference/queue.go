package inference

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// QueueOptions configures a Queue.
type QueueOptions struct {
	// Device labels the compute device in logs and metrics.
	Device string
	// Size is the number of callers that may wait for the device.
	Size int
	// Timeout bounds queue wait plus generation. Zero disables it.
	Timeout  time.Duration
	Observer Observer
}

type result struct {
	text string
	err  error
}

type job struct {
	ctx      context.Context
	req      Request
	enqueued time.Time
	done     chan result
}

// Queue runs every Generate call on a single worker goroutine so the engine
// never executes two requests at once. Callers wait on a channel and give up
// when their context ends; the worker skips jobs nobody is waiting for.
type Queue struct {
	engine Engine
	opts   QueueOptions

	jobs  chan *job
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
	depth atomic.Int64
}

// NewQueue starts the worker for engine.
func NewQueue(engine Engine, opts QueueOptions) *Queue {
	if opts.Size <= 0 {
		opts.Size = 64
	}
	if opts.Device == "" {
		opts.Device = "cpu"
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}

	q := &Queue{
		engine: engine,
		opts:   opts,
		jobs:   make(chan *job, opts.Size),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// Name returns the wrapped engine's name.
func (q *Queue) Name() string { return q.engine.Name() }

// EchoConvention returns the wrapped engine's echo convention.
func (q *Queue) EchoConvention() string { return q.engine.EchoConvention() }

// Device returns the device label.
func (q *Queue) Device() string { return q.opts.Device }

// Depth reports how many calls are waiting or running.
func (q *Queue) Depth() int { return int(q.depth.Load()) }

// Healthy reports engine health without touching the queue.
func (q *Queue) Healthy(ctx context.Context) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	return q.engine.Healthy(ctx)
}

// Generate enqueues req and waits for its turn and its result.
func (q *Queue) Generate(ctx context.Context, req Request) (string, error) {
	if q.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.opts.Timeout)
		defer cancel()
	}

	j := &job{ctx: ctx, req: req, enqueued: time.Now(), done: make(chan result, 1)}

	q.depth.Add(1)
	select {
	case q.jobs <- j:
	case <-q.stop:
		q.depth.Add(-1)
		return "", ErrClosed
	case <-ctx.Done():
		q.depth.Add(-1)
		return "", contextErr(ctx.Err())
	}

	select {
	case r := <-j.done:
		return r.text, r.err
	case <-ctx.Done():
		return "", contextErr(ctx.Err())
	case <-q.done:
		return "", ErrClosed
	}
}

// Close stops the worker after the running job and fails queued ones.
func (q *Queue) Close() error {
	q.once.Do(func() {
		close(q.stop)
		<-q.done
	})
	return nil
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		select {
		case <-q.stop:
			q.drain()
			return
		case j := <-q.jobs:
			q.execute(j)
		}
	}
}

func (q *Queue) drain() {
	for {
		select {
		case j := <-q.jobs:
			q.depth.Add(-1)
			j.done <- result{err: ErrClosed}
		default:
			return
		}
	}
}

func (q *Queue) execute(j *job) {
	defer q.depth.Add(-1)

	if err := j.ctx.Err(); err != nil {
		j.done <- result{err: contextErr(err)}
		return
	}
	q.opts.Observer.QueueWait(q.opts.Device, time.Since(j.enqueued))

	start := time.Now()
	text, err := q.engine.Generate(j.ctx, j.req)
	elapsed := time.Since(start)
	if err != nil {
		err = contextErr(err)
		log.Printf("[inference] %s on %s failed after %s: %v", q.engine.Name(), q.opts.Device, elapsed, err)
	}
	q.opts.Observer.Inference(q.opts.Device, q.engine.Name(), elapsed, err)

	j.done <- result{text: text, err: err}
}

func contextErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
