package goSession

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/MrEthical07/goSession/internal/dispatch"
)

// broadcaster is the invalidation bus. Publishing never blocks the request pipeline:
// a full bus or a slow subscriber loses the event and the loss is counted.
type broadcaster struct {
	disp *dispatch.Dispatcher[InvalidationEvent]

	mu      sync.RWMutex
	subs    map[uint64]chan InvalidationEvent
	nextID  uint64
	closed  bool
	dropped atomic.Uint64
}

func newBroadcaster(cfg BroadcastConfig) *broadcaster {
	b := &broadcaster{subs: make(map[uint64]chan InvalidationEvent)}
	b.disp = dispatch.New[InvalidationEvent](dispatch.Config{
		Enabled:    true,
		BufferSize: cfg.BufferSize,
		DropIfFull: true,
	}, dispatch.SinkFunc[InvalidationEvent](b.fanOut))
	return b
}

func (b *broadcaster) Publish(ctx context.Context, ev InvalidationEvent) {
	b.disp.Emit(ctx, ev)
}

func (b *broadcaster) fanOut(_ context.Context, ev InvalidationEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers a receiver. The returned cancel func closes the channel and is
// safe to call more than once.
func (b *broadcaster) Subscribe(buffer int) (<-chan InvalidationEvent, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan InvalidationEvent, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Dropped counts events lost on a full bus or a full subscriber channel.
func (b *broadcaster) Dropped() uint64 {
	return b.disp.Dropped() + b.dropped.Load()
}

// Close delivers what is already queued, then closes every subscriber channel.
func (b *broadcaster) Close() {
	b.disp.Close()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
