package command

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/MEKXH/breakbot/internal/bus"
	"github.com/MEKXH/breakbot/internal/metrics"
)

// Intake is the part of the intake machine commands drive.
type Intake interface {
	Start(ctx context.Context, requesterID int64, displayName string) error
	Cancel(ctx context.Context, requesterID int64) error
	ActiveSessions() int
}

// Env carries per-invocation context for a slash command.
type Env struct {
	Channel      string
	ChatID       int64
	Private      bool
	Sender       bus.Sender
	Intake       Intake
	Metrics      *metrics.RuntimeMetrics
	ListCommands func() []Command // for /help
}

// Result is the output of a slash command execution.
// An empty Content means the command already answered on its own.
type Result struct {
	Content string
	Err     error
}

// Command is the interface every slash command must implement.
type Command interface {
	// Name returns the command trigger without the leading slash (e.g. "start").
	Name() string
	// Description returns a short human-readable summary.
	Description() string
	// Execute runs the command. args is the trimmed text after the command name.
	Execute(ctx context.Context, args string, env Env) Result
}

// Registry holds registered slash commands and dispatches them.
type Registry struct {
	mu   sync.RWMutex
	cmds map[string]Command
}

// NewRegistry creates an empty command registry.
func NewRegistry() *Registry {
	return &Registry{cmds: make(map[string]Command)}
}

// NewDefaultRegistry registers every built-in command.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&StartCommand{})
	r.Register(&CancelCommand{})
	r.Register(&ChatIDCommand{})
	r.Register(&StatusCommand{})
	r.Register(&HelpCommand{})
	r.Register(&VersionCommand{})
	return r
}

// Register adds a command. Panics on duplicate names.
func (r *Registry) Register(cmd Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := strings.ToLower(cmd.Name())
	if _, dup := r.cmds[name]; dup {
		panic("command already registered: " + name)
	}
	r.cmds[name] = cmd
}

// Get returns the command registered under name, with or without a leading
// slash or a trailing "@botname" suffix.
func (r *Registry) Get(name string) (Command, bool) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	name, _, _ = strings.Cut(name, "@")
	name = strings.ToLower(name)
	if name == "" {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.cmds[name]
	return cmd, ok
}

// Lookup parses raw user input. If it starts with "/" and matches a registered
// command, it returns the command, the remaining args, and true.
func (r *Registry) Lookup(content string) (Command, string, bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "/") {
		return nil, "", false
	}
	name, args, _ := strings.Cut(content[1:], " ")
	cmd, ok := r.Get(name)
	if !ok {
		return nil, "", false
	}
	return cmd, strings.TrimSpace(args), true
}

// List returns all registered commands sorted by name.
func (r *Registry) List() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, 0, len(r.cmds))
	for _, cmd := range r.cmds {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
