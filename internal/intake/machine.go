package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MEKXH/breakbot/internal/breakreq"
	"github.com/MEKXH/breakbot/internal/bus"
	"github.com/MEKXH/breakbot/internal/channel"
	"github.com/MEKXH/breakbot/internal/metrics"
	"github.com/MEKXH/breakbot/internal/render"
)

const (
	// DefaultTimeout is the inactivity window after which a session expires.
	DefaultTimeout     = 300 * time.Second
	defaultSendTimeout = 15 * time.Second
)

// Options configures a Machine.
type Options struct {
	Timeout     time.Duration
	SendTimeout time.Duration
	Metrics     *metrics.RuntimeMetrics
}

type slot struct {
	mu      sync.Mutex
	session *Session
	stop    func() bool
	gen     uint64
}

// Machine owns the live intake sessions. Work for one requester is serialized
// on that requester's slot; different requesters never wait on each other.
type Machine struct {
	store       *breakreq.Store
	notifier    channel.Notifier
	metrics     *metrics.RuntimeMetrics
	timeout     time.Duration
	sendTimeout time.Duration
	now         func() time.Time
	afterFunc   func(d time.Duration, f func()) (stop func() bool)

	mu    sync.Mutex
	slots map[int64]*slot
}

// NewMachine creates a machine writing submitted requests to store.
func NewMachine(store *breakreq.Store, notifier channel.Notifier, opts Options) *Machine {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	return &Machine{
		store:       store,
		notifier:    notifier,
		metrics:     opts.Metrics,
		timeout:     opts.Timeout,
		sendTimeout: opts.SendTimeout,
		now:         time.Now,
		afterFunc: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
		slots: make(map[int64]*slot),
	}
}

// Session returns the live session for requesterID, if any.
func (m *Machine) Session(requesterID int64) (Session, bool) {
	sl := m.slotFor(requesterID)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.session == nil {
		return Session{}, false
	}
	return *sl.session, true
}

// Start opens a fresh session, replacing any session already in progress.
func (m *Machine) Start(ctx context.Context, requesterID int64, displayName string) error {
	sl := m.slotFor(requesterID)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.session != nil {
		slog.Info("intake restarted",
			"request_id", bus.RequestIDFromContext(ctx),
			"requester_id", requesterID,
			"stage", sl.session.Stage.String(),
		)
		if sl.session.Stage.Collecting() {
			m.metrics.RecordIntake(metrics.IntakeRestarted)
		}
	}

	step := Begin(requesterID, displayName, m.now())
	m.commit(ctx, sl, step.Next)
	m.metrics.RecordIntake(metrics.IntakeStarted)

	if _, err := m.notifier.NotifyRequester(ctx, requesterID, render.DepartmentPrompt()); err != nil {
		return fmt.Errorf("prompt department: %w", err)
	}
	return nil
}

// HandleText feeds a plain text message from the requester into its session.
func (m *Machine) HandleText(ctx context.Context, requesterID int64, text string) error {
	sl := m.slotFor(requesterID)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.session == nil {
		if _, err := m.notifier.NotifyRequester(ctx, requesterID, render.StartHint()); err != nil {
			return fmt.Errorf("send start hint: %w", err)
		}
		return nil
	}

	step := Apply(*sl.session, text, m.now())
	switch {
	case step.Request != nil:
		return m.submit(ctx, sl, step)
	case step.Changed:
		m.commit(ctx, sl, step.Next)
		if _, err := m.notifier.NotifyRequester(ctx, requesterID, render.DurationPrompt(step.Next.Department)); err != nil {
			return fmt.Errorf("prompt duration: %w", err)
		}
		return nil
	case step.Prompt == PromptInvalidDepartment:
		m.metrics.RecordIntake(metrics.IntakeReprompt)
		slog.Debug("invalid department", "requester_id", requesterID, "input", text)
		if _, err := m.notifier.NotifyRequester(ctx, requesterID, render.InvalidDepartment()); err != nil {
			return fmt.Errorf("re-prompt department: %w", err)
		}
		return nil
	case step.Prompt == PromptInvalidDuration:
		m.metrics.RecordIntake(metrics.IntakeReprompt)
		slog.Debug("invalid duration", "requester_id", requesterID, "input", text)
		if _, err := m.notifier.NotifyRequester(ctx, requesterID, render.InvalidDuration()); err != nil {
			return fmt.Errorf("re-prompt duration: %w", err)
		}
		return nil
	default:
		// Waiting for approval; nothing to do.
		return nil
	}
}

// Cancel discards the requester's session. A request already stored is untouched.
func (m *Machine) Cancel(ctx context.Context, requesterID int64) error {
	sl := m.slotFor(requesterID)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.session == nil {
		if _, err := m.notifier.NotifyRequester(ctx, requesterID, render.NothingToCancel()); err != nil {
			return fmt.Errorf("send cancel notice: %w", err)
		}
		return nil
	}

	prev := *sl.session
	step := Cancel(prev, m.now())
	m.discard(ctx, sl, step.Next)
	if prev.Stage.Collecting() {
		m.metrics.RecordIntake(metrics.IntakeCancelled)
	}

	if _, err := m.notifier.NotifyRequester(ctx, requesterID, render.Cancelled()); err != nil {
		return fmt.Errorf("send cancel notice: %w", err)
	}
	return nil
}

// Release drops a submitted session once its request has been resolved.
func (m *Machine) Release(requesterID int64) {
	sl := m.slotFor(requesterID)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.session != nil && sl.session.Stage == StageAwaitingApprovalAck {
		m.clear(sl)
	}
}

// ActiveSessions counts live sessions, including ones waiting for approval.
func (m *Machine) ActiveSessions() int {
	m.mu.Lock()
	slots := make([]*slot, 0, len(m.slots))
	for _, sl := range m.slots {
		slots = append(slots, sl)
	}
	m.mu.Unlock()

	n := 0
	for _, sl := range slots {
		sl.mu.Lock()
		if sl.session != nil {
			n++
		}
		sl.mu.Unlock()
	}
	return n
}

// Close stops every pending timeout.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sl := range m.slots {
		sl.mu.Lock()
		if sl.stop != nil {
			sl.stop()
			sl.stop = nil
		}
		sl.gen++
		sl.mu.Unlock()
	}
}

func (m *Machine) submit(ctx context.Context, sl *slot, step Step) error {
	req := *step.Request
	m.store.Put(req)

	logger := slog.With(
		"request_id", bus.RequestIDFromContext(ctx),
		"requester_id", req.RequesterID,
		"department", string(req.Department),
		"duration_minutes", req.DurationMinutes,
	)

	if _, err := m.notifier.NotifyApproverChannel(ctx, render.ApprovalCard(req)); err != nil {
		m.discard(ctx, sl, Fail(step.Next, m.now()))
		m.metrics.RecordIntake(metrics.IntakeFailed)
		logger.Error("failed to send break request", "error", err)

		if _, notifyErr := m.notifier.NotifyRequester(ctx, req.RequesterID, render.SubmitFailed()); notifyErr != nil {
			err = errors.Join(err, notifyErr)
		}
		return fmt.Errorf("submit break request: %w", err)
	}
	m.metrics.RecordIntake(metrics.IntakeSubmitted)

	if _, err := m.notifier.NotifyRequester(ctx, req.RequesterID, render.Submitted()); err != nil {
		m.discard(ctx, sl, Fail(step.Next, m.now()))
		logger.Error("break request sent but requester confirmation failed", "error", err)
		return fmt.Errorf("confirm break request: %w", err)
	}

	m.commit(ctx, sl, step.Next)
	logger.Info("break request sent")
	return nil
}

// commit stores next as the live session and restarts its inactivity timer.
func (m *Machine) commit(ctx context.Context, sl *slot, next Session) {
	from := "none"
	if sl.session != nil {
		from = sl.session.Stage.String()
	}
	slog.Info("intake transition",
		"request_id", bus.RequestIDFromContext(ctx),
		"requester_id", next.RequesterID,
		"from", from,
		"to", next.Stage.String(),
	)

	sl.session = &next
	if sl.stop != nil {
		sl.stop()
	}
	sl.gen++
	gen := sl.gen
	requesterID := next.RequesterID
	sl.stop = m.afterFunc(m.timeout, func() { m.expire(requesterID, gen) })
}

func (m *Machine) discard(ctx context.Context, sl *slot, final Session) {
	slog.Info("intake ended",
		"request_id", bus.RequestIDFromContext(ctx),
		"requester_id", final.RequesterID,
		"stage", final.Stage.String(),
	)
	m.clear(sl)
}

func (m *Machine) clear(sl *slot) {
	sl.session = nil
	if sl.stop != nil {
		sl.stop()
		sl.stop = nil
	}
	sl.gen++
}

func (m *Machine) expire(requesterID int64, gen uint64) {
	sl := m.slotFor(requesterID)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.session == nil || sl.gen != gen {
		return
	}

	prev := *sl.session
	step := Expire(prev, m.now())
	ctx := bus.WithRequestID(context.Background(), bus.NewRequestID())
	m.discard(ctx, sl, step.Next)
	if prev.Stage.Collecting() {
		m.metrics.RecordIntake(metrics.IntakeTimedOut)
	}
	if step.Prompt != PromptTimedOut {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, m.sendTimeout)
	defer cancel()
	if _, err := m.notifier.NotifyRequester(sendCtx, requesterID, render.TimedOut()); err != nil {
		slog.Error("failed to send timeout notice", "requester_id", requesterID, "error", err)
	}
}

func (m *Machine) slotFor(requesterID int64) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	sl, ok := m.slots[requesterID]
	if !ok {
		sl = &slot{}
		m.slots[requesterID] = sl
	}
	return sl
}
