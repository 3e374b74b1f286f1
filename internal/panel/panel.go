// Package panel hosts the native side of each UI surface: every panel owns
// exactly one bus, and the Shell registry guarantees no two live panels share
// an address.
package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"panelbus/internal/bus"
	"panelbus/internal/channel"
	"panelbus/internal/messages"
	"panelbus/internal/state"
)

// ShellPanelName is the reserved panel name of the shell's own root bus.
const ShellPanelName = "shell"

// ErrAddressTaken is returned by Open while a live panel already holds the
// requested name.
var ErrAddressTaken = errors.New("panel address taken")

// Panel is one hosted UI surface's native anchor. Its bus lives exactly as
// long as the panel; Close drops the channel subscription so late messages
// are silently discarded instead of reaching a destroyed surface.
type Panel struct {
	name  string
	bus   *bus.Bus
	shell *Shell
	once  sync.Once
}

func (p *Panel) Name() string    { return p.name }
func (p *Panel) Bus() *bus.Bus   { return p.bus }
func (p *Panel) Address() string { return p.bus.Address() }

// Close disposes the panel's bus and announces the departure. Idempotent.
func (p *Panel) Close() {
	p.once.Do(func() {
		addr := p.bus.Address()
		p.bus.Close()
		p.shell.forget(p)
		if err := p.shell.publisher.Broadcast(context.Background(),
			messages.NewPanelClosedEvent(addr)); err != nil {
			p.shell.logger.Warn("panel: closed event", "address", addr, "err", err)
		}
	})
}

// Shell is the per-process panel registry. It owns a root bus at
// "<process>.shell" which hosts the shared state store and answers pings,
// and it hands out uniquely addressed buses to panels.
type Shell struct {
	process string
	ch      channel.Channel
	logger  *slog.Logger
	busOpts []bus.Option

	root      *bus.Bus
	publisher *messages.Publisher
	store     *state.Store
	offPing   func()

	mu     sync.Mutex
	panels map[string]*Panel
	closed bool
}

// ShellOption configures a Shell.
type ShellOption func(*Shell)

// WithBusOptions applies extra options to every bus the shell creates.
func WithBusOptions(opts ...bus.Option) ShellOption {
	return func(s *Shell) { s.busOpts = opts }
}

// WithShellLogger overrides the default slog logger.
func WithShellLogger(l *slog.Logger) ShellOption {
	return func(s *Shell) { s.logger = l }
}

// NewShell creates the registry and its root bus on ch.
func NewShell(process string, ch channel.Channel, opts ...ShellOption) (*Shell, error) {
	s := &Shell{
		process: process,
		ch:      ch,
		logger:  slog.Default(),
		panels:  make(map[string]*Panel),
	}
	for _, opt := range opts {
		opt(s)
	}

	root, err := bus.New(ch, process, ShellPanelName, s.busOpts...)
	if err != nil {
		return nil, fmt.Errorf("shell %s: root bus: %w", process, err)
	}
	s.root = root
	s.publisher = messages.NewPublisher(root)
	s.store = state.Attach(root, s.logger)
	s.offPing = root.OnMessage(messages.PingType, s.onPing)
	return s, nil
}

func (s *Shell) onPing(ctx context.Context, msg channel.Message) {
	reply := messages.PingReply{Address: s.root.Address()}
	if err := s.root.Reply(ctx, msg, reply); err != nil {
		s.logger.Warn("shell: ping reply", "to", msg.Source(), "err", err)
	}
}

// Root returns the shell's own bus.
func (s *Shell) Root() *bus.Bus { return s.root }

// State returns the shared state store.
func (s *Shell) State() *state.Store { return s.store }

// Open creates a panel and its bus at "<process>.<name>". The name must be
// free among live panels.
func (s *Shell) Open(name string) (*Panel, error) {
	if name == "" || name == ShellPanelName {
		return nil, fmt.Errorf("shell %s: invalid panel name %q", s.process, name)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, bus.ErrClosed
	}
	if _, live := s.panels[name]; live {
		s.mu.Unlock()
		return nil, fmt.Errorf("shell %s: open %q: %w", s.process, name, ErrAddressTaken)
	}
	// Reserve the name before releasing the lock so concurrent Opens of the
	// same panel cannot both build a bus.
	s.panels[name] = nil
	s.mu.Unlock()

	b, err := bus.New(s.ch, s.process, name, s.busOpts...)
	if err != nil {
		s.mu.Lock()
		delete(s.panels, name)
		s.mu.Unlock()
		return nil, fmt.Errorf("shell %s: open %q: %w", s.process, name, err)
	}

	p := &Panel{name: name, bus: b, shell: s}
	s.mu.Lock()
	s.panels[name] = p
	s.mu.Unlock()

	if err := s.publisher.Broadcast(context.Background(),
		messages.NewPanelOpenedEvent(p.Address())); err != nil {
		s.logger.Warn("shell: opened event", "address", p.Address(), "err", err)
	}
	return p, nil
}

// Get returns the live panel registered under name.
func (s *Shell) Get(name string) (*Panel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.panels[name]
	return p, ok && p != nil
}

func (s *Shell) forget(p *Panel) {
	s.mu.Lock()
	if cur, ok := s.panels[p.name]; ok && cur == p {
		delete(s.panels, p.name)
	}
	s.mu.Unlock()
}

// Close disposes every panel and the root bus.
func (s *Shell) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	panels := make([]*Panel, 0, len(s.panels))
	for _, p := range s.panels {
		if p != nil {
			panels = append(panels, p)
		}
	}
	s.mu.Unlock()

	for _, p := range panels {
		p.Close()
	}
	s.offPing()
	s.store.Close()
	s.root.Close()
}
