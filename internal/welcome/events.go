package welcome

import (
	"context"
	"sync"
)

const defaultEventBufferSize = 100

// Bus delivers MemberGreeted events to subscribed extensions. Delivery
// is fire-and-forget: publishing never blocks the activation path, and
// events queued past the buffer are dropped.
type Bus struct {
	events chan MemberGreeted

	mu       sync.RWMutex
	handlers []func(context.Context, MemberGreeted)
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = defaultEventBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		events: make(chan MemberGreeted, bufferSize),
		ctx:    ctx,
		cancel: cancel,
	}

	b.wg.Add(1)
	go b.dispatch()

	return b
}

func (b *Bus) dispatch() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case e, ok := <-b.events:
			if !ok {
				return
			}
			b.mu.RLock()
			handlers := b.handlers
			b.mu.RUnlock()
			for _, handler := range handlers {
				handler(b.ctx, e)
			}
		}
	}
}

func (b *Bus) Subscribe(handler func(context.Context, MemberGreeted)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

func (b *Bus) Publish(e MemberGreeted) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return
	}

	select {
	case b.events <- e:
	default:
	}
}

func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
}
