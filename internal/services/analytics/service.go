// Package analytics summarizes the engagement event log and exports it as CSV.
package analytics

import (
	"context"
	"time"

	"postbot/internal/storage"
	logx "postbot/pkg/logx"
)

type Service struct {
	store storage.Store
	log   logx.Logger
}

func New(store storage.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: store, log: log.With(logx.String("comp", "analytics"))}
}

// Summary is an aggregate view over a trailing time window.
type Summary struct {
	Window    time.Duration
	Publishes int
	Clicks    int
	TopPosts  []storage.PostClicks
	ByFormat  map[string]int
}

// Summarize aggregates engagement over the trailing window (e.g. 24h, 7d).
func (s *Service) Summarize(ctx context.Context, window time.Duration) (*Summary, error) {
	since := time.Now().Add(-window)

	publishes, err := s.store.CountEvents(ctx, storage.ActionPublish, since)
	if err != nil {
		return nil, err
	}
	clicks, err := s.store.CountEvents(ctx, storage.ActionClick, since)
	if err != nil {
		return nil, err
	}
	top, err := s.store.TopPostsByClicks(ctx, since, 5)
	if err != nil {
		return nil, err
	}
	byFormat, err := s.store.CountPostsByFormat(ctx, since)
	if err != nil {
		return nil, err
	}

	return &Summary{
		Window:    window,
		Publishes: publishes,
		Clicks:    clicks,
		TopPosts:  top,
		ByFormat:  byFormat,
	}, nil
}

// RecordClick appends a CTA click for the post. Clicks on deleted posts are
// still recorded; the log is append-only and joins are best-effort.
func (s *Service) RecordClick(ctx context.Context, postID, actorID int64) error {
	return s.store.AppendEvent(ctx, storage.Event{
		PostID:  postID,
		Action:  storage.ActionClick,
		ActorID: actorID,
	})
}
