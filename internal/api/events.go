package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/studioclock/timeturner/internal/pipeline"
)

// subBuffer bounds each subscriber's queue. A slow client skips
// snapshots rather than stalling the consumer.
const subBuffer = 8

// writeTimeout bounds one websocket write.
const writeTimeout = 5 * time.Second

// hub fans published snapshots out to websocket subscribers.
type hub struct {
	mu   sync.Mutex
	subs map[chan pipeline.Snapshot]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[chan pipeline.Snapshot]struct{})}
}

func (h *hub) subscribe() chan pipeline.Snapshot {
	ch := make(chan pipeline.Snapshot, subBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *hub) unsubscribe(ch chan pipeline.Snapshot) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// broadcast never blocks: a full subscriber loses its oldest snapshot.
func (h *hub) broadcast(snap pipeline.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// handleEvents upgrades the request to a websocket and streams every
// published snapshot as a JSON message, starting with the current one.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Debug("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	// CloseRead pumps control frames and cancels the context when the
	// client goes away; we never expect data from the client.
	ctx := conn.CloseRead(r.Context())

	ch := s.hub.subscribe()
	defer s.hub.unsubscribe(ch)

	if err := writeSnapshot(ctx, conn, s.opts.Consumer.Snapshot()); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusGoingAway, "shutting down")
			return
		case snap := <-ch:
			if err := writeSnapshot(ctx, conn, snap); err != nil {
				return
			}
		}
	}
}

func writeSnapshot(ctx context.Context, conn *websocket.Conn, snap pipeline.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, snap)
}
