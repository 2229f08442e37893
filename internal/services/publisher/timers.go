package publisher

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	logx "postbot/pkg/logx"
)

// armTimer creates the one-shot timer for the post, atomically replacing any
// existing one. The waiter goroutine exits on fire or on engine shutdown.
func (s *Service) armTimer(ctx context.Context, postID int64, at time.Time) {
	d := at.Sub(s.clock.Now())
	if d < 0 {
		d = 0
	}
	t := s.clock.NewTimer(d)

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		stopAndDrainTimer(t)
		return
	}
	if prev, ok := s.timers[postID]; ok {
		stopAndDrainTimer(prev)
		s.log.Debug("replaced existing timer", logx.Int64("post_id", postID))
	}
	s.timers[postID] = t
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-t.Chan():
			// Only fire if we are still the registered timer: a replace or
			// cancel that raced the fire wins.
			if !s.unregisterTimer(postID, t) {
				return
			}
			s.firePost(ctx, postID, "timer")
		case <-ctx.Done():
			stopAndDrainTimer(t)
			s.unregisterTimer(postID, t)
		}
	}()
}

// unregisterTimer removes the timer from the map if it is still the current
// one for the post, reporting whether it was.
func (s *Service) unregisterTimer(postID int64, t clockwork.Timer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.timers[postID]
	if !ok || cur != t {
		return false
	}
	delete(s.timers, postID)
	return true
}

func (s *Service) cancelTimer(postID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[postID]; ok {
		stopAndDrainTimer(t)
		delete(s.timers, postID)
	}
	delete(s.attempts, postID)
	delete(s.retryAt, postID)
}

// stopAndDrainTimer stops a timer and drains its channel so a fire that
// slipped in before Stop cannot leak into a later receive.
func stopAndDrainTimer(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}

// tryAcquire marks the post as in-flight; timer and sweep both call this, so
// exactly one of two racing fires proceeds to delivery.
func (s *Service) tryAcquire(postID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[postID]; busy {
		return false
	}
	s.inFlight[postID] = struct{}{}
	return true
}

func (s *Service) release(postID int64) {
	s.mu.Lock()
	delete(s.inFlight, postID)
	s.mu.Unlock()
}
