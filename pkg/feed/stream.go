package feed

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// subscriberBuffer is the channel buffer of each subscription. A
// subscriber that falls this far behind is forcibly unsubscribed rather
// than allowed to block the controller.
const subscriberBuffer = 64

// stream is a broadcast channel with optional latest-value replay.
// State streams (items, load state, all-loaded) replay their current
// value to new subscribers; the error stream does not.
type stream[T any] struct {
	mu     sync.Mutex
	subs   map[chan T]struct{}
	latest T
	primed bool
	replay bool
	closed bool

	logger zerolog.Logger
}

func newStream[T any](logger zerolog.Logger, replay bool) *stream[T] {
	return &stream[T]{
		subs:   make(map[chan T]struct{}),
		replay: replay,
		logger: logger,
	}
}

// subscribe registers a new subscriber. The subscription ends when ctx
// is canceled or the stream closes; either way the returned channel is
// closed. On a closed stream the channel is returned already closed.
func (s *stream[T]) subscribe(ctx context.Context) <-chan T {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan T, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch
	}
	if s.replay && s.primed {
		ch <- s.latest
	}
	s.subs[ch] = struct{}{}

	go func() {
		<-ctx.Done()
		s.unsubscribe(ch)
	}()

	return ch
}

// publish delivers v to every subscriber and records it as the latest
// value. Subscribers with a full buffer are dropped so a stalled
// observer can never hold up state transitions.
func (s *stream[T]) publish(v T) {
	var full []chan T

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.latest = v
	s.primed = true
	for ch := range s.subs {
		select {
		case ch <- v:
		default:
			full = append(full, ch)
		}
	}
	s.mu.Unlock()

	for _, ch := range full {
		s.logger.Warn().Int("buffer", subscriberBuffer).Msg("dropping slow stream subscriber")
		s.unsubscribe(ch)
	}
}

// latestValue returns the most recently published value, if any.
func (s *stream[T]) latestValue() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.primed
}

func (s *stream[T]) unsubscribe(ch chan T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[ch]; !ok {
		return
	}
	close(ch)
	delete(s.subs, ch)
}

// close completes the stream: every subscriber channel is closed and
// further publishes are discarded.
func (s *stream[T]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for ch := range s.subs {
		close(ch)
	}
	s.subs = make(map[chan T]struct{})
}
