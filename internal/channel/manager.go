package channel

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Manager coordinates all channels
type Manager struct {
	channels map[string]Channel
	mu       sync.RWMutex
	wg       sync.WaitGroup
}

// NewManager creates a channel manager
func NewManager() *Manager {
	return &Manager{channels: make(map[string]Channel)}
}

// Register adds a channel
func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
}

// Get returns a registered channel by name.
func (m *Manager) Get(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// Names returns registered channel names
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StartAll starts all channels. errCh, if non-nil, receives start failures.
func (m *Manager) StartAll(ctx context.Context, errCh chan<- error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, ch := range m.channels {
		m.wg.Add(1)
		go func(n string, c Channel) {
			defer m.wg.Done()
			slog.Info("starting channel", "name", n)
			if err := c.Start(ctx); err != nil {
				slog.Error("channel error", "name", n, "error", err)
				if errCh != nil {
					select {
					case errCh <- err:
					default:
					}
				}
			}
		}(name, ch)
	}
}

// StopAll stops all channels and waits for their loops to return.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.RLock()
	for name, ch := range m.channels {
		if err := ch.Stop(ctx); err != nil {
			slog.Warn("channel stop failed", "name", name, "error", err)
		}
	}
	m.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
