package command

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MEKXH/breakbot/internal/bus"
	"github.com/MEKXH/breakbot/internal/metrics"
	"github.com/MEKXH/breakbot/internal/render"
)

type fakeIntake struct {
	started   []int64
	names     []string
	cancelled []int64
	active    int
	err       error
}

func (f *fakeIntake) Start(_ context.Context, id int64, name string) error {
	f.started = append(f.started, id)
	f.names = append(f.names, name)
	return f.err
}

func (f *fakeIntake) Cancel(_ context.Context, id int64) error {
	f.cancelled = append(f.cancelled, id)
	return f.err
}

func (f *fakeIntake) ActiveSessions() int { return f.active }

func privateEnv(in Intake) Env {
	return Env{
		Channel: "telegram",
		ChatID:  7,
		Private: true,
		Sender:  bus.Sender{ID: 7, DisplayName: "@alice"},
		Intake:  in,
	}
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewDefaultRegistry()
	cases := []struct {
		input string
		name  string
		args  string
		ok    bool
	}{
		{"/start", "start", "", true},
		{"  /START  ", "start", "", true},
		{"/getchatid@breakbot", "getchatid", "", true},
		{"/cancel now please", "cancel", "now please", true},
		{"start", "", "", false},
		{"/", "", "", false},
		{"/unknown", "", "", false},
	}
	for _, tc := range cases {
		cmd, args, ok := r.Lookup(tc.input)
		if ok != tc.ok {
			t.Fatalf("Lookup(%q) ok=%v, want %v", tc.input, ok, tc.ok)
		}
		if !ok {
			continue
		}
		if cmd.Name() != tc.name || args != tc.args {
			t.Fatalf("Lookup(%q) = %q %q, want %q %q", tc.input, cmd.Name(), args, tc.name, tc.args)
		}
	}
}

func TestRegistry_RegisterDuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.Register(&HelpCommand{})
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate command")
		}
	}()
	r.Register(&HelpCommand{})
}

func TestRegistry_ListSorted(t *testing.T) {
	var names []string
	for _, cmd := range NewDefaultRegistry().List() {
		names = append(names, cmd.Name())
	}
	want := "cancel getchatid help start status version"
	if got := strings.Join(names, " "); got != want {
		t.Fatalf("List() = %q, want %q", got, want)
	}
}

func TestStartAndCancel_PrivateChat(t *testing.T) {
	in := &fakeIntake{}
	env := privateEnv(in)

	if res := (&StartCommand{}).Execute(context.Background(), "", env); res.Content != "" || res.Err != nil {
		t.Fatalf("unexpected start result %+v", res)
	}
	if res := (&CancelCommand{}).Execute(context.Background(), "", env); res.Content != "" || res.Err != nil {
		t.Fatalf("unexpected cancel result %+v", res)
	}
	if len(in.started) != 1 || in.started[0] != 7 || in.names[0] != "@alice" {
		t.Fatalf("unexpected start calls %v %v", in.started, in.names)
	}
	if len(in.cancelled) != 1 || in.cancelled[0] != 7 {
		t.Fatalf("unexpected cancel calls %v", in.cancelled)
	}
}

func TestStartAndCancel_GroupChatRefused(t *testing.T) {
	in := &fakeIntake{}
	env := privateEnv(in)
	env.Private = false
	env.ChatID = -100

	for _, cmd := range []Command{&StartCommand{}, &CancelCommand{}} {
		if res := cmd.Execute(context.Background(), "", env); res.Content != render.PrivateOnly {
			t.Fatalf("/%s in group: got %q", cmd.Name(), res.Content)
		}
	}
	if len(in.started)+len(in.cancelled) != 0 {
		t.Fatal("intake must not be driven from a group chat")
	}
}

func TestStart_PropagatesIntakeError(t *testing.T) {
	boom := errors.New("boom")
	res := (&StartCommand{}).Execute(context.Background(), "", privateEnv(&fakeIntake{err: boom}))
	if !errors.Is(res.Err, boom) {
		t.Fatalf("expected intake error, got %v", res.Err)
	}
}

func TestChatIDCommand(t *testing.T) {
	env := Env{ChatID: -100123}
	res := (&ChatIDCommand{}).Execute(context.Background(), "", env)
	if !strings.Contains(res.Content, "-100123") {
		t.Fatalf("expected chat id echoed, got %q", res.Content)
	}
}

func TestHelpCommand_ListsCommands(t *testing.T) {
	r := NewDefaultRegistry()
	res := (&HelpCommand{}).Execute(context.Background(), "", Env{ListCommands: r.List})
	for _, want := range []string{"/start - Request a break", "/getchatid", "/cancel"} {
		if !strings.Contains(res.Content, want) {
			t.Fatalf("help missing %q:\n%s", want, res.Content)
		}
	}
}

func TestStatusCommand(t *testing.T) {
	m := metrics.NewRuntimeMetrics(nil)
	env := Env{Intake: &fakeIntake{active: 2}, Metrics: m}

	res := (&StatusCommand{}).Execute(context.Background(), "", env)
	if !strings.Contains(res.Content, "Open sessions: 2") || !strings.Contains(res.Content, "No activity yet") {
		t.Fatalf("unexpected empty status:\n%s", res.Content)
	}

	m.RecordIntake(metrics.IntakeStarted)
	m.RecordResolution(metrics.ResolutionApproved)
	res = (&StatusCommand{}).Execute(context.Background(), "", env)
	if !strings.Contains(res.Content, "1 started") || !strings.Contains(res.Content, "1 approved") {
		t.Fatalf("unexpected status:\n%s", res.Content)
	}
}

func TestVersionCommand(t *testing.T) {
	res := (&VersionCommand{}).Execute(context.Background(), "", Env{})
	if !strings.HasPrefix(res.Content, "breakbot ") {
		t.Fatalf("unexpected version output %q", res.Content)
	}
}
