package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"panelbus/internal/panel"

	"github.com/go-chi/chi/v5"
	datastar "github.com/starfederation/datastar/sdk/go"
)

// SSEPoster posts envelopes into hosted content as datastar signal patches.
// The generator is not safe for concurrent writes, hence the mutex.
type SSEPoster struct {
	mu  sync.Mutex
	sse *datastar.ServerSentEventGenerator
}

func NewSSEPoster(sse *datastar.ServerSentEventGenerator) *SSEPoster {
	return &SSEPoster{sse: sse}
}

func (p *SSEPoster) Post(_ context.Context, env Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sse.MarshalAndMergeSignals(map[string]any{"panelMessage": env})
}

// StreamHandler is the outbound half of the bridge over HTTP: hosted content
// opens an SSE stream for its panel and receives every bus delivery as a
// signal patch until the connection drops. The panel is opened on first
// contact and closed when its stream ends.
func StreamHandler(shell *panel.Shell, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "panel")

		p, live := shell.Get(name)
		if !live {
			var err error
			if p, err = shell.Open(name); err != nil {
				logger.Warn("bridge: open panel", "panel", name, "err", err)
				http.Error(w, "panel unavailable", http.StatusConflict)
				return
			}
			defer p.Close()
		}

		sse := datastar.NewSSE(w, r)
		fwd := Forward(p.Bus(), NewSSEPoster(sse), logger)
		defer fwd.Close()

		logger.Info("bridge: stream attached", "address", p.Address())
		<-r.Context().Done()
		logger.Info("bridge: stream detached", "address", p.Address())
	}
}

// SendHandler is the inbound half: hosted content POSTs a Call for its panel
// and the bridge re-emits it on the panel's bus.
func SendHandler(shell *panel.Shell, in *Inbound) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "panel")
		p, live := shell.Get(name)
		if !live {
			http.Error(w, "unknown panel", http.StatusNotFound)
			return
		}

		var call Call
		if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		if err := in.Handle(r.Context(), p.Bus(), call); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "sent",
			"type":   call.Type,
		})
	}
}
