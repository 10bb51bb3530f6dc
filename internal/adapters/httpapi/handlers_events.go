package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/travelmap/ratings-api/internal/ports/out/events"
)

const (
	sseBuffer    = 32
	sseHeartbeat = 25 * time.Second
)

// StreamMyEvents streams the caller's state events as server-sent events. The first event is a
// "state" snapshot; each later one carries an events.Kind as its event name.
func (s *Server) StreamMyEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, codeNotStreamable, "streaming unsupported", nil)
		return
	}
	if s.Events == nil {
		writeError(w, r, http.StatusServiceUnavailable, codeNotStreamable, "event stream unavailable", nil)
		return
	}
	userID, st, ok := s.session(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	clientID := uuid.NewString()
	log := s.Log.With(zap.String("userId", string(userID)), zap.String("clientId", clientID))

	ch := make(chan events.Event, sseBuffer)
	cancel, err := s.Events.Subscribe(ctx, userID, func(ev events.Event) {
		select {
		case ch <- ev:
		default:
			log.Warn("sse client too slow; dropping event", zap.String("kind", string(ev.Kind)))
		}
	})
	if err != nil {
		log.Error("subscribe failed", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, codeNotStreamable, "event stream unavailable", nil)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeSSE(w, clientID, "state", stateToDTO(st.State())); err != nil {
		return
	}
	flusher.Flush()
	log.Debug("sse client connected")

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug("sse client disconnected")
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev := <-ch:
			if err := writeSSE(w, ev.ID, string(ev.Kind), eventToDTO(ev)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, id, name string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", id, name, b)
	return err
}
