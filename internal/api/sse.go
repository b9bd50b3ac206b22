package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/micro-nova/laserguard/internal/events"
)

// sseEvents handles the SSE (Server-Sent Events) endpoint.
// Clients receive a snapshot of the device, notification and schedule
// settings immediately, then every change as it is committed.
func (h *Handlers) sseEvents(w http.ResponseWriter, r *http.Request) {
	// Verify the client supports streaming
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	id := uuid.New().String()
	ch := h.Events.Subscribe(id)
	defer h.Events.Unsubscribe(id)

	now := time.Now()
	sendSSE(w, flusher, events.Event{Kind: events.KindDevice, At: now, Data: h.Device.Info()})
	sendSSE(w, flusher, events.Event{Kind: events.KindNotification, At: now, Data: h.Notification.State()})
	sendSSE(w, flusher, events.Event{Kind: events.KindSchedule, At: now, Data: h.Schedule.State()})

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			sendSSE(w, flusher, ev)
		case <-r.Context().Done():
			return
		}
	}
}

func sendSSE(w http.ResponseWriter, flusher http.Flusher, ev events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
	flusher.Flush()
}
