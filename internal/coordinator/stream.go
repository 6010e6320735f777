package coordinator

import (
	"context"
	"iter"
	"sync/atomic"
)

// Stream yields the fragments of one turn as they are produced
type Stream struct {
	ctx  context.Context
	turn *turn
	used atomic.Bool
	done atomic.Bool
	err  error
}

// SessionID is the session the turn runs in
func (s *Stream) SessionID() string {
	return s.turn.sessionID
}

// Created reports whether the session was created for this turn
func (s *Stream) Created() bool {
	return s.turn.created
}

// Fragments runs the turn, yielding each fragment. The sequence can be
// consumed once; later iterations yield nothing.
func (s *Stream) Fragments() iter.Seq[string] {
	return func(yield func(string) bool) {
		if !s.used.CompareAndSwap(false, true) {
			return
		}
		s.err = s.turn.run(s.ctx, yield)
		s.done.Store(true)
	}
}

// Err returns the error that ended the turn, once Fragments has finished
func (s *Stream) Err() error {
	if !s.done.Load() {
		return nil
	}
	return s.err
}

// Response returns the full response once Fragments has finished without error
func (s *Stream) Response() *QueryResponse {
	if !s.done.Load() || s.err != nil {
		return nil
	}
	return s.turn.response()
}
