package feed

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// inFlightLoad is one page load owned by the supervisor. Its context is
// canceled when a newer load supersedes it or the controller closes.
type inFlightLoad struct {
	id      uuid.UUID
	ctx     context.Context
	cancel  context.CancelFunc
	kind    LoadState
	ordinal int
	epoch   uint64
	started time.Time
}

// loadSupervisor enforces the single in-flight load rule. Starting a
// load while another is running cancels the older one; only the load
// that is still current when it settles returns the controller to
// StateIdle.
type loadSupervisor struct {
	c       *Controller
	current *inFlightLoad
}

// start begins a load for ordinal. The caller must hold c.mu.
func (s *loadSupervisor) start(ordinal int, kind LoadState) {
	if prev := s.current; prev != nil {
		s.c.logger.Info().
			Str("load_id", prev.id.String()).
			Int("ordinal", prev.ordinal).
			Msg("superseding in-flight load")
		prev.cancel()
	}

	ctx, cancel := context.WithCancel(s.c.ctx)
	load := &inFlightLoad{
		id:      uuid.New(),
		ctx:     ctx,
		cancel:  cancel,
		kind:    kind,
		ordinal: ordinal,
		epoch:   s.c.epoch,
		started: time.Now(),
	}
	s.current = load
	s.c.setStateLocked(kind)

	s.c.logger.Debug().
		Str("load_id", load.id.String()).
		Int("ordinal", ordinal).
		Str("kind", string(kind)).
		Msg("starting page load")

	go s.run(load)
}

// run performs the fetch outside the controller lock and hands the
// result to settle. The cached-page callback merges through the same
// lock so cached and fresh copies of a page follow one code path.
func (s *loadSupervisor) run(load *inFlightLoad) {
	onCached := func(page Page[Stock]) {
		s.c.mu.Lock()
		defer s.c.mu.Unlock()
		if s.c.closed || load.epoch != s.c.epoch {
			return
		}
		s.c.mergeAndEmitLocked(page, "cache")
	}

	page, err := s.c.source.FetchList(load.ctx, load.ordinal, onCached)
	s.settle(load, page, err)
}

// settle merges the result, reports the outcome, and releases the
// in-flight slot if this load is still the current one. A result from
// before the last reset is dropped; a result merely superseded by a
// newer load of the same cycle is still valid and gets merged, but the
// newer load keeps ownership of the load state.
func (s *loadSupervisor) settle(load *inFlightLoad, page Page[Stock], err error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	LoadDuration.WithLabelValues(string(load.kind)).Observe(time.Since(load.started).Seconds())

	if s.c.closed {
		return
	}

	sameEpoch := load.epoch == s.c.epoch

	var outcome string
	switch {
	case err == nil:
		if sameEpoch {
			outcome = "success"
			s.c.mergeAndEmitLocked(page, "network")
		} else {
			outcome = "superseded"
			s.c.logger.Debug().
				Str("load_id", load.id.String()).
				Int("ordinal", load.ordinal).
				Msg("dropping page load result from before refresh")
		}
	case errors.Is(err, ErrContentUnchanged):
		outcome = "not_modified"
		s.c.logger.Debug().
			Str("load_id", load.id.String()).
			Int("ordinal", load.ordinal).
			Msg("page content unchanged")
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
		s.c.logger.Warn().
			Err(err).
			Str("load_id", load.id.String()).
			Int("ordinal", load.ordinal).
			Msg("page not found")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "canceled"
		s.c.logger.Debug().
			Str("load_id", load.id.String()).
			Int("ordinal", load.ordinal).
			Msg("page load canceled")
	default:
		outcome = "error"
		if sameEpoch && s.current == load {
			s.c.logger.Error().
				Err(err).
				Str("load_id", load.id.String()).
				Int("ordinal", load.ordinal).
				Msg("page load failed")
			s.c.errStream.publish(err)
		} else {
			s.c.logger.Debug().
				Err(err).
				Str("load_id", load.id.String()).
				Int("ordinal", load.ordinal).
				Msg("superseded page load failed")
		}
	}

	LoadsTotal.WithLabelValues(string(load.kind), outcome).Inc()

	if s.current != load {
		return
	}
	s.current = nil
	s.c.setStateLocked(StateIdle)
	s.c.loadedStream.publish(s.c.allLoadedLocked(load.ordinal))
}
