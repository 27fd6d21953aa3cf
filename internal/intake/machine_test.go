package intake

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MEKXH/breakbot/internal/breakreq"
	"github.com/MEKXH/breakbot/internal/channel"
	"github.com/MEKXH/breakbot/internal/channel/channeltest"
	"github.com/MEKXH/breakbot/internal/metrics"
)

type fakeTimer struct {
	d       time.Duration
	fn      func()
	stopped bool
}

type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (f *fakeTimers) afterFunc(d time.Duration, fn func()) func() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	tm := &fakeTimer{d: d, fn: fn}
	f.timers = append(f.timers, tm)
	return func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		was := !tm.stopped
		tm.stopped = true
		return was
	}
}

// fireLive runs every timer that has not been stopped, as if the window elapsed.
func (f *fakeTimers) fireLive() int {
	f.mu.Lock()
	var live []*fakeTimer
	for _, tm := range f.timers {
		if !tm.stopped {
			tm.stopped = true
			live = append(live, tm)
		}
	}
	f.mu.Unlock()
	for _, tm := range live {
		tm.fn()
	}
	return len(live)
}

type harness struct {
	machine  *Machine
	store    *breakreq.Store
	notifier *channeltest.Recorder
	timers   *fakeTimers
	metrics  *metrics.RuntimeMetrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := breakreq.NewStore()
	notifier := channeltest.NewRecorder()
	recorder := metrics.NewRuntimeMetrics(nil)
	m := NewMachine(store, notifier, Options{Metrics: recorder})
	timers := &fakeTimers{}
	m.afterFunc = timers.afterFunc
	m.now = func() time.Time { return t0 }
	return &harness{machine: m, store: store, notifier: notifier, timers: timers, metrics: recorder}
}

func lastText(t *testing.T, calls []channeltest.Call) string {
	t.Helper()
	if len(calls) == 0 {
		t.Fatal("expected at least one call")
	}
	return calls[len(calls)-1].Message.Text
}

func TestMachine_ScenarioSubmit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.machine.Start(ctx, 7, "@alice"); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if err := h.machine.HandleText(ctx, 7, "AML"); err != nil {
		t.Fatalf("department error: %v", err)
	}
	if err := h.machine.HandleText(ctx, 7, "10"); err != nil {
		t.Fatalf("duration error: %v", err)
	}

	req, err := h.store.Get(7)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if req.Department != breakreq.DepartmentAML || req.DurationMinutes != 10 || req.Status != breakreq.StatusPending {
		t.Fatalf("unexpected stored request %+v", req)
	}

	approverCalls := h.notifier.CallsOf(channeltest.KindApprovers)
	if len(approverCalls) != 1 {
		t.Fatalf("expected one approver notification, got %d", len(approverCalls))
	}
	choices := approverCalls[0].Message.Options.Choices
	if len(choices) != 1 || len(choices[0]) != 2 {
		t.Fatalf("expected Approve/Ignore choices, got %v", choices)
	}
	for _, c := range choices[0] {
		tok, err := breakreq.ParseActionToken(c.Token)
		if err != nil || tok.RequesterID != 7 {
			t.Fatalf("choice %q not bound to requester 7: %v", c.Token, err)
		}
	}

	if got := lastText(t, h.notifier.CallsOf(channeltest.KindRequester)); !strings.Contains(got, "sent for approval") {
		t.Fatalf("expected submission confirmation, got %q", got)
	}
	s, ok := h.machine.Session(7)
	if !ok || s.Stage != StageAwaitingApprovalAck {
		t.Fatalf("expected session awaiting approval, got %+v (ok=%v)", s, ok)
	}
	if snap := h.metrics.Snapshot(); snap.Intake.Submitted != 1 || snap.Intake.Active != 0 {
		t.Fatalf("unexpected intake stats %+v", snap.Intake)
	}
}

func TestMachine_InvalidInputRepromptsWithoutAdvancing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.machine.Start(ctx, 7, "@alice")

	if err := h.machine.HandleText(ctx, 7, "Finance"); err != nil {
		t.Fatalf("HandleText error: %v", err)
	}
	if s, _ := h.machine.Session(7); s.Stage != StageAwaitingDepartment {
		t.Fatalf("expected to stay awaiting department, got %s", s.Stage)
	}
	if got := lastText(t, h.notifier.CallsOf(channeltest.KindRequester)); !strings.Contains(got, "valid department") {
		t.Fatalf("expected department re-prompt, got %q", got)
	}

	_ = h.machine.HandleText(ctx, 7, "Alert")
	for _, input := range []string{"forever", "12", "0"} {
		if err := h.machine.HandleText(ctx, 7, input); err != nil {
			t.Fatalf("HandleText(%q) error: %v", input, err)
		}
		if s, _ := h.machine.Session(7); s.Stage != StageAwaitingDuration {
			t.Fatalf("input %q advanced stage to %s", input, s.Stage)
		}
	}
	if _, err := h.store.Get(7); !errors.Is(err, breakreq.ErrNotFound) {
		t.Fatalf("expected nothing stored, got %v", err)
	}
	if snap := h.metrics.Snapshot(); snap.Intake.Reprompts != 4 {
		t.Fatalf("expected 4 re-prompts, got %d", snap.Intake.Reprompts)
	}
}

func TestMachine_TextWhileAwaitingApprovalIsIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.machine.Start(ctx, 7, "@alice")
	_ = h.machine.HandleText(ctx, 7, "AML")
	_ = h.machine.HandleText(ctx, 7, "10")
	before := len(h.notifier.Calls())

	if err := h.machine.HandleText(ctx, 7, "any news?"); err != nil {
		t.Fatalf("HandleText error: %v", err)
	}
	if after := len(h.notifier.Calls()); after != before {
		t.Fatalf("expected no messages while waiting, got %d new", after-before)
	}
}

func TestMachine_TextWithoutSessionGetsHint(t *testing.T) {
	h := newHarness(t)
	if err := h.machine.HandleText(context.Background(), 9, "hello"); err != nil {
		t.Fatalf("HandleText error: %v", err)
	}
	if got := lastText(t, h.notifier.Calls()); !strings.Contains(got, "/start") {
		t.Fatalf("expected start hint, got %q", got)
	}
}

func TestMachine_CancelDiscardsSessionKeepsStoredRequest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.machine.Start(ctx, 7, "@alice")
	_ = h.machine.HandleText(ctx, 7, "AML")
	_ = h.machine.HandleText(ctx, 7, "10")

	_ = h.machine.Start(ctx, 7, "@alice")
	_ = h.machine.HandleText(ctx, 7, "Alert")
	if err := h.machine.Cancel(ctx, 7); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}

	if _, ok := h.machine.Session(7); ok {
		t.Fatal("expected session to be discarded")
	}
	req, err := h.store.Get(7)
	if err != nil || req.Status != breakreq.StatusPending || req.Department != breakreq.DepartmentAML {
		t.Fatalf("expected first request untouched, got %+v (%v)", req, err)
	}
	if got := lastText(t, h.notifier.Calls()); !strings.Contains(got, "cancelled") {
		t.Fatalf("expected cancellation notice, got %q", got)
	}
}

func TestMachine_CancelWithoutSession(t *testing.T) {
	h := newHarness(t)
	if err := h.machine.Cancel(context.Background(), 3); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if got := lastText(t, h.notifier.Calls()); !strings.Contains(got, "no break request in progress") {
		t.Fatalf("unexpected notice %q", got)
	}
}

func TestMachine_TimeoutFreesSlotAndRestartIsFresh(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.machine.Start(ctx, 7, "@alice")
	_ = h.machine.HandleText(ctx, 7, "Verification")

	if n := h.timers.fireLive(); n != 1 {
		t.Fatalf("expected one live timer, got %d", n)
	}
	if _, ok := h.machine.Session(7); ok {
		t.Fatal("expected session to expire")
	}
	if got := lastText(t, h.notifier.Calls()); !strings.Contains(got, "timed out") {
		t.Fatalf("expected timeout notice, got %q", got)
	}

	_ = h.machine.Start(ctx, 7, "@alice")
	s, ok := h.machine.Session(7)
	if !ok || s.Stage != StageAwaitingDepartment || s.Department != "" {
		t.Fatalf("expected fresh session, got %+v", s)
	}

	// Late callbacks from the expired session must not touch the new one.
	h.timers.timers[0].fn()
	h.timers.timers[1].fn()
	if s, ok := h.machine.Session(7); !ok || s.Stage != StageAwaitingDepartment {
		t.Fatalf("expected new session to survive stale timers, got %+v (ok=%v)", s, ok)
	}
	if snap := h.metrics.Snapshot(); snap.Intake.TimedOut != 1 {
		t.Fatalf("expected 1 timeout, got %d", snap.Intake.TimedOut)
	}
}

func TestMachine_StaleTimerIgnoredAfterTransition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.machine.Start(ctx, 7, "@alice")
	first := h.timers.timers[0]
	_ = h.machine.HandleText(ctx, 7, "AML")

	first.fn()
	s, ok := h.machine.Session(7)
	if !ok || s.Stage != StageAwaitingDuration {
		t.Fatalf("expected stale timer to be ignored, got %+v (ok=%v)", s, ok)
	}
}

func TestMachine_TimerUsesConfiguredWindow(t *testing.T) {
	h := newHarness(t)
	_ = h.machine.Start(context.Background(), 7, "@alice")
	if got := h.timers.timers[0].d; got != DefaultTimeout {
		t.Fatalf("expected %s window, got %s", DefaultTimeout, got)
	}
}

func TestMachine_SubmittedSessionExpiresQuietly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.machine.Start(ctx, 7, "@alice")
	_ = h.machine.HandleText(ctx, 7, "AML")
	_ = h.machine.HandleText(ctx, 7, "5")
	before := len(h.notifier.Calls())

	h.timers.fireLive()
	if _, ok := h.machine.Session(7); ok {
		t.Fatal("expected submitted session to be discarded")
	}
	if len(h.notifier.Calls()) != before {
		t.Fatal("expected no timeout notice after submission")
	}
	if req, _ := h.store.Get(7); req.Status != breakreq.StatusPending {
		t.Fatalf("expected stored request to stay pending, got %q", req.Status)
	}
}

func TestMachine_ApproverDeliveryFailureAbortsIntake(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.machine.Start(ctx, 7, "@alice")
	_ = h.machine.HandleText(ctx, 7, "AML")
	h.notifier.FailOn(channeltest.KindApprovers, channeltest.ErrUnavailable)

	err := h.machine.HandleText(ctx, 7, "15")
	if !errors.Is(err, channel.ErrDeliveryFailed) {
		t.Fatalf("expected delivery failure, got %v", err)
	}
	if _, ok := h.machine.Session(7); ok {
		t.Fatal("expected session to end after delivery failure")
	}
	req, getErr := h.store.Get(7)
	if getErr != nil || req.Status != breakreq.StatusPending {
		t.Fatalf("expected pending record to remain, got %+v (%v)", req, getErr)
	}
	if got := lastText(t, h.notifier.CallsOf(channeltest.KindRequester)); !strings.Contains(got, "try again") {
		t.Fatalf("expected retry instruction, got %q", got)
	}
	if snap := h.metrics.Snapshot(); snap.Intake.Failed != 1 {
		t.Fatalf("expected failed intake to be counted, got %+v", snap.Intake)
	}
}

func TestMachine_ConfirmationFailureLeavesPendingRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.machine.Start(ctx, 7, "@alice")
	_ = h.machine.HandleText(ctx, 7, "AML")
	h.notifier.FailOn(channeltest.KindRequester, channeltest.ErrUnavailable)

	if err := h.machine.HandleText(ctx, 7, "20"); err == nil {
		t.Fatal("expected confirmation failure to be reported")
	}
	if len(h.notifier.CallsOf(channeltest.KindApprovers)) != 1 {
		t.Fatal("expected approvers to have been notified")
	}
	if _, ok := h.machine.Session(7); ok {
		t.Fatal("expected session to be discarded")
	}
	if req, err := h.store.Get(7); err != nil || req.Status != breakreq.StatusPending {
		t.Fatalf("expected pending record, got %+v (%v)", req, err)
	}
}

func TestMachine_ReleaseDropsSubmittedSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.machine.Start(ctx, 7, "@alice")
	h.machine.Release(7)
	if _, ok := h.machine.Session(7); !ok {
		t.Fatal("Release must not drop a session that is still collecting input")
	}

	_ = h.machine.HandleText(ctx, 7, "AML")
	_ = h.machine.HandleText(ctx, 7, "10")
	h.machine.Release(7)
	if _, ok := h.machine.Session(7); ok {
		t.Fatal("expected submitted session to be released")
	}
	if h.machine.ActiveSessions() != 0 {
		t.Fatalf("expected no active sessions, got %d", h.machine.ActiveSessions())
	}
}

func TestMachine_RequestersDoNotShareSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for id := int64(1); id <= 20; id++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_ = h.machine.Start(ctx, id, "user")
			_ = h.machine.HandleText(ctx, id, "Alert")
			_ = h.machine.HandleText(ctx, id, "5")
		}(id)
	}
	wg.Wait()

	for id := int64(1); id <= 20; id++ {
		req, err := h.store.Get(id)
		if err != nil || req.Department != breakreq.DepartmentAlert || req.DurationMinutes != 5 {
			t.Fatalf("unexpected request for %d: %+v (%v)", id, req, err)
		}
	}
	if got := len(h.notifier.CallsOf(channeltest.KindApprovers)); got != 20 {
		t.Fatalf("expected 20 approver notifications, got %d", got)
	}
}
