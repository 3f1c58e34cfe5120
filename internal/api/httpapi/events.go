package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/osa030/tunemap/internal/app/notification"
)

const eventBuffer = 32

// handleEvents streams cache changes as server-sent events until the client
// goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.svc.Events == nil {
		writeError(w, http.StatusNotFound, "event stream disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	stream := notification.NewChannelStream(eventBuffer)
	id := s.svc.Events.Subscribe(stream)
	defer s.svc.Events.Unsubscribe(id)

	log := s.log.With().Str("subscription", id).Logger()
	log.Info().Str("remote", r.RemoteAddr).Msg("event subscriber connected")
	defer log.Info().Msg("event subscriber disconnected")

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event := <-stream.Events():
			if err := writeEvent(w, event); err != nil {
				log.Debug().Err(err).Msg("failed to write event")
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event *notification.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.SequenceNo, event.Op, data)
	return err
}
