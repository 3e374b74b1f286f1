// Package state keeps the shell's shared document in sync across panels.
// Panels publish "state.patch" commands carrying RFC 7386 merge patches; the
// store applies each patch to its JSON document and broadcasts the merged
// result as "state.changed" so every panel converges on the same view.
package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"panelbus/internal/bus"
	"panelbus/internal/messages"

	jsonpatch "github.com/evanphx/json-patch/v5"
)

// Store owns the shared document. One store runs per shell, attached to the
// shell's own bus.
type Store struct {
	mu       sync.Mutex
	doc      []byte
	revision uint64

	bus    *bus.Bus
	off    func()
	logger *slog.Logger
}

// Attach creates a store with an empty document and subscribes it for patch
// commands on b.
func Attach(b *bus.Bus, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		doc:    []byte(`{}`),
		bus:    b,
		logger: logger,
	}
	s.off = bus.On(b, messages.StatePatchType, s.onPatch)
	return s
}

func (s *Store) onPatch(ctx context.Context, cmd messages.StatePatchCommand) {
	if err := cmd.Validate(); err != nil {
		s.logger.Warn("state: dropping invalid patch", "err", err)
		return
	}

	s.mu.Lock()
	merged, err := jsonpatch.MergePatch(s.doc, cmd.Patch)
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn("state: merge patch failed", "err", err)
		return
	}
	s.doc = merged
	s.revision++
	ev := messages.StateChangedEvent{State: merged, Revision: s.revision, ChangedAt: time.Now()}
	s.mu.Unlock()

	if err := s.bus.Broadcast(ctx, messages.StateChangedType, ev); err != nil {
		s.logger.Error("state: broadcast failed", "revision", ev.Revision, "err", err)
	}
}

// Snapshot returns the current document and its revision.
func (s *Store) Snapshot() ([]byte, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := make([]byte, len(s.doc))
	copy(doc, s.doc)
	return doc, s.revision
}

// Close stops the store from consuming further patches.
func (s *Store) Close() {
	s.off()
}
