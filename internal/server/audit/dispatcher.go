package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/logging"
)

// Dispatcher forwards records to a Sink from a single background worker.
// Emit never blocks: when the buffer is full the record is dropped and
// counted.
type Dispatcher struct {
	sink         Sink
	logger       logging.Logger
	ch           chan Record
	done         chan struct{}
	wg           sync.WaitGroup
	dropped      atomic.Uint64
	closed       atomic.Bool
	closeOnce    sync.Once
	onDrop       func()
	writeTimeout time.Duration
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithDropHook registers fn to run for each dropped record.
func WithDropHook(fn func()) Option {
	return func(d *Dispatcher) { d.onDrop = fn }
}

// WithWriteTimeout bounds each Sink.Write call.
func WithWriteTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.writeTimeout = t }
}

func NewDispatcher(sink Sink, bufferSize int, logger logging.Logger, opts ...Option) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 1
	}

	d := &Dispatcher{
		sink:         sink,
		logger:       logger.With("module", "audit_dispatcher"),
		ch:           make(chan Record, bufferSize),
		done:         make(chan struct{}),
		writeTimeout: 5 * time.Second,
	}
	for _, o := range opts {
		o(d)
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case r := <-d.ch:
			d.write(r)
		case <-d.done:
			for {
				select {
				case r := <-d.ch:
					d.write(r)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) write(r Record) {
	ctx, cancel := context.WithTimeout(context.Background(), d.writeTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			d.logger.Error(ctx, "audit sink panicked", "audit_id", r.ID, "panic", p)
		}
	}()

	if err := d.sink.Write(ctx, r); err != nil {
		d.logger.Error(ctx, "audit sink write failed", append([]any{"audit_id", r.ID}, logging.ErrorAttrs(err)...)...)
	}
}

// Emit queues r. It is safe on a nil or closed Dispatcher.
func (d *Dispatcher) Emit(r Record) {
	if d == nil || d.closed.Load() {
		return
	}

	select {
	case d.ch <- r:
	case <-d.done:
	default:
		d.dropped.Add(1)
		if d.onDrop != nil {
			d.onDrop()
		}
	}
}

// Close stops accepting records and drains the queue.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped reports how many records were discarded because the buffer was
// full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
