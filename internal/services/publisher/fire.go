package publisher

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"postbot/internal/storage"
	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
	"postbot/pkg/tgui"
)

// firePost is the single delivery path, shared by timers, the sweep and
// PublishNow. source is for logging only.
func (s *Service) firePost(ctx context.Context, postID int64, source string) {
	if !s.tryAcquire(postID) {
		s.log.Debug("fire skipped, already in flight", logx.Int64("post_id", postID), logx.String("source", source))
		return
	}
	defer s.release(postID)

	log := s.log.With(logx.Int64("post_id", postID), logx.String("source", source))

	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Deleted between scheduling and fire; drop leftover state.
			s.cancelTimer(postID)
			log.Debug("fire skipped, post deleted")
			return
		}
		log.Error("fire: load post failed", logx.Err(err))
		return
	}
	if post.Status != storage.StatusScheduled {
		// Cancelled or already published since the timer was armed.
		s.cancelTimer(postID)
		log.Debug("fire skipped, post no longer scheduled", logx.String("status", string(post.Status)))
		return
	}
	if !post.MediaKind.Valid() {
		log.Error("fire skipped, unknown media kind", logx.String("media_kind", string(post.MediaKind)))
		return
	}

	cfg := s.snapshotCfg()
	sendCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	ref, err := s.deliver(sendCtx, cfg.Channel, post)
	cancel()
	if err != nil {
		s.retryLater(ctx, post, err)
		return
	}

	changed, err := s.store.MarkPublished(ctx, postID)
	if err != nil {
		log.Error("fire: mark published failed", logx.Err(err))
		return
	}
	if !changed {
		// Someone else completed the transition first; they own the event.
		log.Debug("lost publish race, no event recorded")
		return
	}

	if err := s.store.AppendEvent(ctx, storage.Event{
		PostID: postID,
		Action: storage.ActionPublish,
		Note:   source,
	}); err != nil {
		log.Error("fire: append publish event failed", logx.Err(err))
	}

	s.mu.Lock()
	attempt := s.attempts[postID] + 1
	delete(s.attempts, postID)
	delete(s.retryAt, postID)
	s.mu.Unlock()

	log.Info("post published", logx.Int("attempt", attempt), logx.Int("message_id", ref.MessageID))
	s.publishEvent(EventPublished, Outcome{PostID: postID, Title: post.Title, Attempt: attempt, MessageID: ref.MessageID})
}

func (s *Service) deliver(ctx context.Context, to kit.ChatTarget, post *storage.Post) (kit.MessageRef, error) {
	text := renderPost(post)
	opt := &kit.SendOptions{
		ParseMode:          "HTML",
		ReplyMarkupAdapter: ctaMarkup(post.ID),
	}
	return s.tg.SendMedia(ctx, to, post.MediaKind, post.MediaRef, text, opt)
}

// retryLater re-arms the timer for a failed delivery, or gives the post back
// to draft when the attempt budget is spent.
func (s *Service) retryLater(ctx context.Context, post *storage.Post, cause error) {
	cfg := s.snapshotCfg()
	log := s.log.With(logx.Int64("post_id", post.ID))

	s.mu.Lock()
	s.attempts[post.ID]++
	attempt := s.attempts[post.ID]
	s.mu.Unlock()

	if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
		log.Error("delivery failed, attempt budget spent, returning to draft",
			logx.Int("attempts", attempt), logx.Err(cause))
		if changed, err := s.store.ResetToDraft(ctx, post.ID); err != nil {
			log.Error("reset to draft failed", logx.Err(err))
		} else if changed {
			_ = s.store.AppendEvent(ctx, storage.Event{PostID: post.ID, Action: storage.ActionExpire, Note: "delivery failed"})
		}
		s.cancelTimer(post.ID)
		s.publishEvent(EventExpired, Outcome{PostID: post.ID, Title: post.Title, Attempt: attempt, Err: cause.Error()})
		return
	}

	next := s.clock.Now().Add(cfg.RetryDelay)
	s.mu.Lock()
	s.retryAt[post.ID] = next
	s.mu.Unlock()

	log.Warn("delivery failed, retrying",
		logx.Int("attempt", attempt), logx.Time("next_try", next), logx.Err(cause))
	s.armTimer(ctx, post.ID, next)
	s.publishEvent(EventRetry, Outcome{PostID: post.ID, Title: post.Title, Attempt: attempt, NextTry: next, Err: cause.Error()})
}

// renderPost builds the channel message. The body is stored as Telegram HTML
// (the generator emits it that way); the title is escaped here.
func renderPost(post *storage.Post) string {
	var b strings.Builder
	if t := strings.TrimSpace(post.Title); t != "" {
		b.WriteString(tgui.B(t).String())
		b.WriteString("\n\n")
	}
	b.WriteString(post.Body)
	return b.String()
}

func ctaMarkup(postID int64) any {
	id := strconv.FormatInt(postID, 10)
	return tgui.NewInline().
		Row(tgui.Btn("Մանրամասն", tgui.Data("post", "cta", id))).
		Markup()
}
