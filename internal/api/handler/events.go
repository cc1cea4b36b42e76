package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/airmonitor/airmonitor/internal/api/response"
)

// EventsHandler streams controller change notifications as Server-Sent
// Events.
type EventsHandler struct {
	ctrl      Orchestrator
	heartbeat time.Duration
	logger    zerolog.Logger
}

// NewEventsHandler creates a new EventsHandler. A non-positive heartbeat
// defaults to 15s.
func NewEventsHandler(ctrl Orchestrator, heartbeat time.Duration, logger zerolog.Logger) *EventsHandler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &EventsHandler{ctrl: ctrl, heartbeat: heartbeat, logger: logger}
}

// Stream handles GET /v1/events. The first event is a full "state"
// snapshot; later events carry only what changed. The stream ends when the
// client disconnects or the controller stops.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	// Subscribed first: changes made while the snapshot is taken still arrive.
	sub := h.ctrl.Subscribe()
	defer sub.Close()

	st, err := h.ctrl.State(r.Context())
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	// The stream has no write deadline.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, 0, "state", st); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		h.logger.Warn().Err(err).Msg("event stream cannot flush")
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			if err := writeEvent(w, ev.Seq, string(ev.Kind), ev.Data); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, seq uint64, kind string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if seq > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", seq); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", kind, payload)
	return err
}
