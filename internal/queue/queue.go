// Package queue provides the bounded-concurrency, rate-limited dispatcher
// that forwards report payloads to a delivery strategy.
package queue

import (
	"context"
	"sync"
	"time"

	errwrap "github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rahmatrdn/go-query-reporter/entity"
	"github.com/rahmatrdn/go-query-reporter/internal/transport"
)

const defaultBuffer = 1024

// Options bounds dispatch. Concurrency is the number of in-flight sends;
// IntervalCap task starts are allowed per Interval window, 0 disables the
// rate limit entirely.
type Options struct {
	Concurrency int
	IntervalCap int
	Interval    time.Duration
}

// Dispatcher accepts payloads in FIFO order and hands them to the Sender
// under the configured caps. Enqueue resolves on acceptance, not delivery.
type Dispatcher struct {
	sender  transport.Sender
	log     *zap.Logger
	limiter *rate.Limiter

	tasks  chan *entity.ReportPayload
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

func NewDispatcher(sender transport.Sender, opts Options, log *zap.Logger) *Dispatcher {
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var limiter *rate.Limiter
	if opts.IntervalCap > 0 && opts.Interval > 0 {
		limit := rate.Limit(float64(opts.IntervalCap) / opts.Interval.Seconds())
		limiter = rate.NewLimiter(limit, opts.IntervalCap)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sender:  sender,
		log:     log,
		limiter: limiter,
		tasks:   make(chan *entity.ReportPayload, defaultBuffer),
		ctx:     ctx,
		cancel:  cancel,
	}

	d.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go d.worker()
	}
	return d
}

// Enqueue accepts a payload for later delivery. It returns an error when the
// dispatcher has been stopped or the buffer is full; the caller is expected
// to fall back to a direct send in that case.
func (d *Dispatcher) Enqueue(payload *entity.ReportPayload) error {
	funcName := "Dispatcher.Enqueue"

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return errwrap.Wrap(errwrap.New("dispatcher stopped"), funcName)
	}

	select {
	case d.tasks <- payload:
		return nil
	default:
		d.log.Error("delivery queue error",
			zap.String("cause", "buffer_full"),
			zap.String("query_id", payload.QueryID))
		return errwrap.Wrap(errwrap.New("delivery queue buffer full"), funcName)
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for payload := range d.tasks {
		d.dispatch(payload)
	}
}

func (d *Dispatcher) dispatch(payload *entity.ReportPayload) {
	if d.limiter != nil {
		if err := d.limiter.Wait(d.ctx); err != nil {
			// Shutdown while waiting for a slot; the payload is dropped,
			// delivery is best effort.
			return
		}
	}

	d.log.Info("delivery task started", zap.String("query_id", payload.QueryID))
	_ = d.sender.Send(d.ctx, payload)
}

// Stop rejects further payloads, drains the tasks already accepted, then
// cancels the send context. Idempotent.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.tasks)
	d.mu.Unlock()

	d.wg.Wait()
	d.cancel()
}
