package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/azzcolabs/concierge/core/chat"
)

// InteractionLogger is the write half of the store the recorder drains
// into.
type InteractionLogger interface {
	LogInteraction(ctx context.Context, rec Interaction) error
}

// Recorder is the asynchronous sink fed by the chat pipeline. Records
// queue on a buffered channel and a single worker drains them into the
// store; when the queue is full the record is dropped and logged, never
// blocking a request.
type Recorder struct {
	store  InteractionLogger
	logger *slog.Logger
	queue  chan chat.Record
	done   chan struct{}
}

// NewRecorder starts the drain worker. buffer <= 0 falls back to 256.
func NewRecorder(store InteractionLogger, logger *slog.Logger, buffer int) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if buffer <= 0 {
		buffer = 256
	}
	r := &Recorder{
		store:  store,
		logger: logger,
		queue:  make(chan chat.Record, buffer),
		done:   make(chan struct{}),
	}
	go r.drain()
	return r
}

// Record implements chat.Recorder.
func (r *Recorder) Record(rec chat.Record) {
	select {
	case r.queue <- rec:
	default:
		r.logger.Warn("analytics queue full, dropping record", "visitor", rec.VisitorID)
	}
}

// Close stops accepting records, flushes the queue and waits for the
// worker to finish.
func (r *Recorder) Close() {
	close(r.queue)
	<-r.done
}

func (r *Recorder) drain() {
	defer close(r.done)

	for rec := range r.queue {
		tags := make([]string, len(rec.TopicTags))
		copy(tags, rec.TopicTags)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := r.store.LogInteraction(ctx, Interaction{
			VisitorID:  rec.VisitorID,
			SessionID:  rec.SessionID,
			Message:    rec.UserMessage,
			Response:   rec.Response,
			Persona:    string(rec.Persona),
			TopicTags:  tags,
			DurationMs: rec.Duration.Milliseconds(),
		})
		cancel()

		if err != nil {
			r.logger.Warn("interaction logging failed", "error", err)
		}
	}
}
