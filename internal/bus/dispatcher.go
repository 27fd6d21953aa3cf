package bus

import (
	"context"
	"sync"
)

// KeyedDispatcher runs work for the same key one at a time in submission order,
// and work for different keys concurrently.
type KeyedDispatcher struct {
	mu     sync.Mutex
	queues map[string][]func(context.Context)
	wg     sync.WaitGroup
}

// NewKeyedDispatcher creates an idle dispatcher.
func NewKeyedDispatcher() *KeyedDispatcher {
	return &KeyedDispatcher{queues: make(map[string][]func(context.Context))}
}

// Dispatch enqueues fn under key. A worker goroutine exists per key only while
// that key has queued work.
func (d *KeyedDispatcher) Dispatch(ctx context.Context, key string, fn func(context.Context)) {
	d.mu.Lock()
	pending, running := d.queues[key]
	d.queues[key] = append(pending, fn)
	d.mu.Unlock()
	if running {
		return
	}

	d.wg.Add(1)
	go d.drain(ctx, key)
}

func (d *KeyedDispatcher) drain(ctx context.Context, key string) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		queue := d.queues[key]
		if len(queue) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		fn := queue[0]
		d.queues[key] = queue[1:]
		d.mu.Unlock()

		fn(ctx)
	}
}

// Wait blocks until all dispatched work has finished.
func (d *KeyedDispatcher) Wait() {
	d.wg.Wait()
}
