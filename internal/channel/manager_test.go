package channel

import (
	"context"
	"errors"
	"testing"
	"time"
)

type mockChannel struct {
	Notifier
	name     string
	startErr error
	stopped  chan struct{}
}

func (m *mockChannel) Name() string { return m.name }
func (m *mockChannel) Start(ctx context.Context) error {
	if m.startErr != nil {
		return m.startErr
	}
	select {
	case <-ctx.Done():
	case <-m.stopped:
	}
	return nil
}
func (m *mockChannel) Stop(ctx context.Context) error {
	close(m.stopped)
	return nil
}

func TestManager_RegisterAndNames(t *testing.T) {
	mgr := NewManager()
	mgr.Register(&mockChannel{name: "telegram", stopped: make(chan struct{})})
	mgr.Register(&mockChannel{name: "alpha", stopped: make(chan struct{})})

	names := mgr.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "telegram" {
		t.Fatalf("unexpected names %v", names)
	}
	if _, ok := mgr.Get("telegram"); !ok {
		t.Fatal("expected telegram channel to be registered")
	}
}

func TestManager_StartAllReportsErrors(t *testing.T) {
	mgr := NewManager()
	boom := errors.New("boom")
	mgr.Register(&mockChannel{name: "bad", startErr: boom, stopped: make(chan struct{})})

	errCh := make(chan error, 1)
	mgr.StartAll(context.Background(), errCh)

	select {
	case err := <-errCh:
		if !errors.Is(err, boom) {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected start error")
	}
}

func TestManager_StopAllWaitsForChannels(t *testing.T) {
	mgr := NewManager()
	mgr.Register(&mockChannel{name: "ok", stopped: make(chan struct{})})
	mgr.StartAll(context.Background(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	mgr.StopAll(ctx)
	if ctx.Err() != nil {
		t.Fatal("expected StopAll to return before timeout")
	}
}
