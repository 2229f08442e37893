package publisher

import (
	"context"

	"postbot/internal/storage"
	logx "postbot/pkg/logx"
)

// sweep re-reads due posts from the database and fires each one. It is the
// crash-recovery path: a post whose timer never existed (previous process
// died) is picked up here at most one interval late. The in-flight guard and
// the conditional publish transition make the timer/sweep overlap harmless.
func (s *Service) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	cfg := s.snapshotCfg()
	now := s.clock.Now()

	posts, err := s.store.ListDuePosts(ctx, now, cfg.BatchSize)
	if err != nil {
		s.log.Error("sweep: list due posts failed", logx.Err(err))
		return
	}
	if len(posts) == 0 {
		return
	}
	s.log.Debug("sweep found due posts", logx.Int("count", len(posts)))

	for i := range posts {
		if ctx.Err() != nil {
			return
		}
		p := &posts[i]
		if !p.MediaKind.Valid() {
			s.log.Error("sweep: skipping post with unknown media kind",
				logx.Int64("post_id", p.ID), logx.String("media_kind", string(p.MediaKind)))
			continue
		}
		// Honor the in-memory retry backoff so the sweep doesn't hammer a
		// failing post every interval.
		s.mu.Lock()
		next, backingOff := s.retryAt[p.ID]
		s.mu.Unlock()
		if backingOff && next.After(now) {
			continue
		}
		s.firePost(ctx, p.ID, "sweep")
	}
}

// cleanup returns posts stuck in "scheduled" past the grace period to draft.
// This is the safety valve for schedules that can never complete (deleted
// channel, persistent delivery errors, operator who walked away).
func (s *Service) cleanup(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	cfg := s.snapshotCfg()
	cutoff := s.clock.Now().Add(-cfg.GracePeriod)

	posts, err := s.store.ListDuePosts(ctx, cutoff, 0)
	if err != nil {
		s.log.Error("cleanup: list stale posts failed", logx.Err(err))
		return
	}
	for i := range posts {
		if ctx.Err() != nil {
			return
		}
		p := &posts[i]
		changed, err := s.store.ResetToDraft(ctx, p.ID)
		if err != nil {
			s.log.Error("cleanup: reset to draft failed", logx.Int64("post_id", p.ID), logx.Err(err))
			continue
		}
		if !changed {
			continue
		}
		s.cancelTimer(p.ID)
		if err := s.store.AppendEvent(ctx, storage.Event{PostID: p.ID, Action: storage.ActionExpire, Note: "grace period elapsed"}); err != nil {
			s.log.Error("cleanup: append expire event failed", logx.Int64("post_id", p.ID), logx.Err(err))
		}
		s.log.Warn("stale schedule returned to draft",
			logx.Int64("post_id", p.ID), logx.Time("was_due", *p.PublishAt))
		s.publishEvent(EventExpired, Outcome{PostID: p.ID, Title: p.Title, Err: "grace period elapsed"})
	}
}
