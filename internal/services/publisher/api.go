package publisher

import (
	"context"
	"fmt"
	"time"

	"postbot/internal/storage"
	logx "postbot/pkg/logx"
)

// Schedule persists the publication time for the post and arms its timer.
// The row is written before the timer: a crash in between is healed by the
// sweep. Scheduling an already-scheduled post replaces both the stored time
// and the timer.
func (s *Service) Schedule(ctx context.Context, postID int64, at time.Time) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	runCtx := s.runCtx
	s.mu.Unlock()

	now := s.clock.Now()
	if !at.After(now) {
		return ErrPastTime
	}

	if _, err := s.store.GetPost(ctx, postID); err != nil {
		return err
	}
	changed, err := s.store.MarkScheduled(ctx, postID, at)
	if err != nil {
		return fmt.Errorf("persist schedule: %w", err)
	}
	if !changed {
		return ErrAlreadyPublished
	}

	s.mu.Lock()
	delete(s.attempts, postID)
	delete(s.retryAt, postID)
	s.mu.Unlock()

	s.armTimer(runCtx, postID, at)
	s.log.Info("post scheduled", logx.Int64("post_id", postID), logx.Time("publish_at", at))
	return nil
}

// Reschedule moves an existing schedule. It is Schedule with a friendlier name
// for call sites that care about the distinction.
func (s *Service) Reschedule(ctx context.Context, postID int64, at time.Time) error {
	return s.Schedule(ctx, postID, at)
}

// Cancel stops the timer and returns the post to draft. Cancelling a post that
// is not scheduled is a no-op; the return reports whether anything changed.
func (s *Service) Cancel(ctx context.Context, postID int64) (bool, error) {
	s.cancelTimer(postID)

	changed, err := s.store.ResetToDraft(ctx, postID)
	if err != nil {
		return false, fmt.Errorf("reset to draft: %w", err)
	}
	if changed {
		s.log.Info("schedule cancelled", logx.Int64("post_id", postID))
	}
	return changed, nil
}

// PublishNow delivers the post immediately, bypassing any stored schedule.
// It still goes through the conditional transition, so a concurrent timer
// fire cannot double-publish.
func (s *Service) PublishNow(ctx context.Context, postID int64) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.mu.Unlock()

	if _, err := s.store.GetPost(ctx, postID); err != nil {
		return err
	}
	changed, err := s.store.MarkScheduled(ctx, postID, s.clock.Now())
	if err != nil {
		return fmt.Errorf("persist schedule: %w", err)
	}
	if !changed {
		return ErrAlreadyPublished
	}
	s.firePost(ctx, postID, "manual")
	return nil
}

// ListPending returns scheduled posts ordered by publish time.
func (s *Service) ListPending(ctx context.Context) ([]PendingPost, error) {
	posts, err := s.store.ListPostsByStatus(ctx, storage.StatusScheduled, 0)
	if err != nil {
		return nil, err
	}
	out := make([]PendingPost, 0, len(posts))
	for i := range posts {
		p := &posts[i]
		if p.PublishAt == nil {
			// Should not happen; scheduled rows always carry publish_at.
			s.log.Warn("scheduled post without publish_at", logx.Int64("post_id", p.ID))
			continue
		}
		out = append(out, PendingPost{ID: p.ID, Title: p.Title, PublishAt: *p.PublishAt})
	}
	return out, nil
}
