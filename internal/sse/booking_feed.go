package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"ms-booking/internal/models"
)

// BookingFeed fans booking lifecycle events out to the organizers watching an event.
type BookingFeed struct {
	clients map[string][]chan models.BookingEvent
	mu      sync.RWMutex
	buffer  int
}

func NewBookingFeed() *BookingFeed {
	return &BookingFeed{
		clients: make(map[string][]chan models.BookingEvent),
		buffer:  16,
	}
}

// Subscribe registers a client for eventID. The channel is closed once ctx is done.
func (f *BookingFeed) Subscribe(ctx context.Context, eventID string) <-chan models.BookingEvent {
	ch := make(chan models.BookingEvent, f.buffer)

	f.mu.Lock()
	f.clients[eventID] = append(f.clients[eventID], ch)
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.remove(eventID, ch)
	}()
	return ch
}

// PublishBookingEvent never blocks; a client whose buffer is full misses the event.
func (f *BookingFeed) PublishBookingEvent(_ context.Context, evt models.BookingEvent) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, ch := range f.clients[evt.EventID] {
		select {
		case ch <- evt:
		default:
		}
	}
	return nil
}

func (f *BookingFeed) remove(eventID string, ch chan models.BookingEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	clients := f.clients[eventID]
	for i, c := range clients {
		if c == ch {
			f.clients[eventID] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}
	if len(f.clients[eventID]) == 0 {
		delete(f.clients, eventID)
	}
}

func (f *BookingFeed) clientCount(eventID string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients[eventID])
}

// Stream writes events for eventID to w as Server-Sent Events until the request ends.
func (f *BookingFeed) Stream(w http.ResponseWriter, r *http.Request, eventID string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming unsupported")
	}
	setupHeaders(w)
	// the server's write timeout would otherwise end long-lived streams
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	ctx := r.Context()
	events := f.Subscribe(ctx, eventID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"eventID\":%q}\n\n", eventID)
	flusher.Flush()

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			data, err := json.Marshal(evt)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
			flusher.Flush()
		case <-ctx.Done():
			return nil
		}
	}
}

func setupHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Accel-Buffering", "no")
}
