package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"sunkelo/internal/domain"
)

// Type names an event on the query stream.
type Type string

const (
	TypeStatus Type = "status"
	TypeReview Type = "review"
	TypeAudio  Type = "audio"
	TypeError  Type = "error"
	TypeDone   Type = "done"
)

// Status values carried by status events, in pipeline order.
const (
	StatusListening  = "listening"
	StatusUnderstood = "understood"
	StatusSearching  = "searching"
	StatusAnalyzing  = "analyzing"
)

// DefaultBuffer is the channel capacity used when none is configured.
const DefaultBuffer = 16

// Event is one entry on the stream.
type Event struct {
	Type Type
	Data any
}

// StatusPayload reports pipeline progress.
type StatusPayload struct {
	Status  string         `json:"status"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorPayload is the body of an error event.
type ErrorPayload struct {
	Code        domain.ErrorCode `json:"code"`
	Message     string           `json:"message"`
	Suggestions []string         `json:"suggestions,omitempty"`
	Remaining   *int64           `json:"remaining,omitempty"`
	ResetAt     *time.Time       `json:"resetAt,omitempty"`
}

// AudioPayload points at the narrated review.
type AudioPayload struct {
	URL             string   `json:"url"`
	DurationSeconds *float64 `json:"durationSeconds,omitempty"`
	LanguageCode    string   `json:"languageCode"`
}

// DonePayload closes the stream.
type DonePayload struct {
	Cached    bool  `json:"cached"`
	Remaining int64 `json:"remaining"`
}

// Writer is the producer side of a bounded, ordered event channel. Exactly
// one done event is delivered; later emits are dropped.
type Writer struct {
	events   chan Event
	gone     chan struct{}
	goneOnce sync.Once

	mu       sync.Mutex
	finished bool
}

// NewWriter allocates a writer with the given channel capacity.
func NewWriter(buffer int) *Writer {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Writer{
		events: make(chan Event, buffer),
		gone:   make(chan struct{}),
	}
}

// Events is the consumer side of the stream.
func (w *Writer) Events() <-chan Event {
	return w.events
}

// Detach tells the writer nobody reads anymore. Emits stop blocking.
func (w *Writer) Detach() {
	w.goneOnce.Do(func() { close(w.gone) })
}

// Finished reports whether done was written.
func (w *Writer) Finished() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finished
}

// Emit appends an event. It reports false when the stream is already done
// or the consumer detached.
func (w *Writer) Emit(typ Type, data any) bool {
	w.mu.Lock()
	if w.finished {
		w.mu.Unlock()
		return false
	}
	if typ == TypeDone {
		w.finished = true
	}
	w.mu.Unlock()

	select {
	case <-w.gone:
		return false
	default:
	}

	select {
	case w.events <- Event{Type: typ, Data: data}:
		return true
	case <-w.gone:
		return false
	}
}

// Status emits a status event.
func (w *Writer) Status(status string, context map[string]any) bool {
	return w.Emit(TypeStatus, StatusPayload{Status: status, Context: context})
}

// Error emits an error event.
func (w *Writer) Error(payload ErrorPayload) bool {
	return w.Emit(TypeError, payload)
}

// Done emits the terminal event.
func (w *Writer) Done(payload DonePayload) bool {
	return w.Emit(TypeDone, payload)
}

// Run drives fn and always leaves the stream terminated by a single done
// event before closing the channel. A panic or returned error becomes an
// UNKNOWN error event.
func Run(ctx context.Context, w *Writer, logger *slog.Logger, fn func(context.Context, *Writer) error) {
	defer close(w.events)

	err := invoke(ctx, w, fn)
	if err != nil {
		if logger != nil {
			logger.Error("query stream failed", "error", err)
		}
		if !w.Finished() {
			w.Error(ErrorPayload{Code: domain.ErrUnknown, Message: domain.ErrUnknown.Message()})
		}
	}
	if !w.Finished() {
		w.Done(DonePayload{})
	}
}

func invoke(ctx context.Context, w *Writer, fn func(context.Context, *Writer) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, w)
}

// Encode writes one server-sent event block.
func Encode(out io.Writer, ev Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	if _, err := fmt.Fprintf(out, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return fmt.Errorf("write %s event: %w", ev.Type, err)
	}
	return nil
}
