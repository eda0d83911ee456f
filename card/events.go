package card

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
)

// EventType is the kind of a progress stream event.
type EventType string

const (
	EventProgress EventType = "progress"
	EventSuccess  EventType = "success"
	EventError    EventType = "error"
)

// Event is one line of the progress stream.
type Event struct {
	Type    EventType `json:"type"`
	Message string    `json:"message,omitempty"`
	URL     string    `json:"url,omitempty"`
}

// EventWriter receives workflow events in order.
type EventWriter interface {
	WriteEvent(e Event) error
}

// EventWriterFunc adapts a function to EventWriter.
type EventWriterFunc func(Event) error

func (f EventWriterFunc) WriteEvent(e Event) error { return f(e) }

// Discard drops every event.
var Discard EventWriter = EventWriterFunc(func(Event) error { return nil })

// NDJSONWriter writes each event as one JSON line and flushes it when the
// underlying writer supports flushing.
type NDJSONWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
	f   http.Flusher
}

// NewNDJSONWriter returns an NDJSONWriter over w.
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	nw := &NDJSONWriter{enc: json.NewEncoder(w)}
	if f, ok := w.(http.Flusher); ok {
		nw.f = f
	}
	return nw
}

// WriteEvent encodes e followed by a newline.
func (w *NDJSONWriter) WriteEvent(e Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(e); err != nil {
		return err
	}
	if w.f != nil {
		w.f.Flush()
	}
	return nil
}
