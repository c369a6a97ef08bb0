package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
)

// Sink receives dispatched events.
type Sink[E any] interface {
	Emit(ctx context.Context, event E)
}

// SinkFunc adapts a function to [Sink].
type SinkFunc[E any] func(ctx context.Context, event E)

func (f SinkFunc[E]) Emit(ctx context.Context, event E) { f(ctx, event) }

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Dispatcher asynchronously forwards events to a sink, one at a time, in emission order.
type Dispatcher[E any] struct {
	cfg       Config
	sink      Sink[E]
	ch        chan E
	done      chan struct{}
	wg        sync.WaitGroup
	delivered atomic.Uint64
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// New starts a dispatcher. It returns nil when cfg.Enabled is false; every method is
// safe on a nil receiver.
func New[E any](cfg Config, sink Sink[E]) *Dispatcher[E] {
	if !cfg.Enabled || sink == nil {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}

	d := &Dispatcher[E]{
		cfg:  cfg,
		sink: sink,
		ch:   make(chan E, cfg.BufferSize),
		done: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher[E]) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher[E]) deliver(event E) {
	d.sink.Emit(context.Background(), event)
	d.delivered.Add(1)
}

// Emit queues event. With DropIfFull a full buffer drops the event; otherwise Emit
// blocks until there is room, ctx is done, or the dispatcher closes.
func (d *Dispatcher[E]) Emit(ctx context.Context, event E) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.done:
	}
}

// Close stops accepting events and drains what is already queued.
func (d *Dispatcher[E]) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher[E]) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func (d *Dispatcher[E]) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}
