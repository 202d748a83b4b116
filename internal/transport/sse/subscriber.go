// Package sse implements the one-way push stream subscriber.
package sse

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dgnsrekt/overlay-relay/internal/relay"
)

// Subscriber queues encoded frames for a single SSE response. Send never
// blocks: a full queue reports relay.ErrSlowSubscriber.
type Subscriber struct {
	id     string
	frames chan []byte
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

// NewSubscriber creates a Subscriber whose queue holds bufferSize frames.
func NewSubscriber(bufferSize int, logger *zap.Logger) *Subscriber {
	if bufferSize < 2 {
		bufferSize = 2
	}
	return &Subscriber{
		id:     uuid.NewString(),
		frames: make(chan []byte, bufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// ID implements relay.Subscriber.
func (s *Subscriber) ID() string { return s.id }

// Send implements relay.Subscriber.
func (s *Subscriber) Send(evt relay.Event) error {
	select {
	case <-s.done:
		return relay.ErrSubscriberClosed
	default:
	}

	frame, err := formatFrame(evt)
	if err != nil {
		return err
	}

	select {
	case s.frames <- frame:
		return nil
	default:
		return relay.ErrSlowSubscriber
	}
}

// Close implements relay.Subscriber.
func (s *Subscriber) Close() {
	s.once.Do(func() { close(s.done) })
}

// Done implements relay.Subscriber.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Serve writes queued frames to w until ctx ends or the subscriber is
// closed. Frames queued before Close are flushed before returning. A
// ": ping" comment is written every pingPeriod.
func (s *Subscriber) Serve(ctx context.Context, w http.ResponseWriter, pingPeriod time.Duration) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return fmt.Errorf("response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer s.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return s.drain(w, flusher)
		case frame := <-s.frames:
			if _, err := w.Write(frame); err != nil {
				s.logger.Debug("failed to write to sse client",
					zap.String("subscriberID", s.id),
					zap.Error(err),
				)
				return err
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}

func (s *Subscriber) drain(w http.ResponseWriter, flusher http.Flusher) error {
	for {
		select {
		case frame := <-s.frames:
			if _, err := w.Write(frame); err != nil {
				return err
			}
		default:
			flusher.Flush()
			return nil
		}
	}
}

func formatFrame(evt relay.Event) ([]byte, error) {
	payload, err := evt.Marshal()
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return []byte(fmt.Sprintf("data: %s\n\n", payload)), nil
}

// Compile-time interface verification
var _ relay.Subscriber = (*Subscriber)(nil)
