package analytics

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"postbot/internal/storage"
	kit "postbot/internal/transport"
)

// ExportPosts renders every post (draft, scheduled and published) with its
// click count as a CSV document ready to send back to the operator.
func (s *Service) ExportPosts(ctx context.Context) (kit.Document, error) {
	var posts []storage.Post
	for _, st := range []storage.Status{storage.StatusDraft, storage.StatusScheduled, storage.StatusPublished} {
		batch, err := s.store.ListPostsByStatus(ctx, st, 0)
		if err != nil {
			return kit.Document{}, fmt.Errorf("export posts: %w", err)
		}
		posts = append(posts, batch...)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{
		"Post ID", "Title", "Format", "Status", "Created At", "Publish At",
		"Keywords", "Text Preview", "Media Kind", "Clicks",
	})

	for i := range posts {
		p := &posts[i]
		events, err := s.store.ListEventsByPost(ctx, p.ID)
		if err != nil {
			return kit.Document{}, fmt.Errorf("export posts: events for %d: %w", p.ID, err)
		}
		clicks := 0
		for _, e := range events {
			if e.Action == storage.ActionClick {
				clicks++
			}
		}

		publishAt := ""
		if p.PublishAt != nil {
			publishAt = p.PublishAt.Format(time.RFC3339)
		}
		_ = w.Write([]string{
			strconv.FormatInt(p.ID, 10),
			p.Title,
			p.Format,
			string(p.Status),
			p.CreatedAt.Format(time.RFC3339),
			publishAt,
			p.Keywords,
			preview(p.Body, 100),
			string(p.MediaKind),
			strconv.Itoa(clicks),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return kit.Document{}, fmt.Errorf("export posts: %w", err)
	}

	return kit.Document{
		Name:    fmt.Sprintf("posts_export_%s.csv", time.Now().Format("20060102_150405")),
		Data:    buf.Bytes(),
		Caption: fmt.Sprintf("%d posts", len(posts)),
	}, nil
}

// ExportEvents renders the raw engagement log for the trailing window.
func (s *Service) ExportEvents(ctx context.Context, window time.Duration) (kit.Document, error) {
	since := time.Now().Add(-window)
	events, err := s.store.ListEventsSince(ctx, since, 0)
	if err != nil {
		return kit.Document{}, fmt.Errorf("export events: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"Event ID", "Post ID", "Action", "Actor ID", "Note", "Timestamp"})
	for _, e := range events {
		actor := ""
		if e.ActorID != 0 {
			actor = strconv.FormatInt(e.ActorID, 10)
		}
		_ = w.Write([]string{
			strconv.FormatInt(e.ID, 10),
			strconv.FormatInt(e.PostID, 10),
			e.Action,
			actor,
			e.Note,
			e.CreatedAt.Format(time.RFC3339),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return kit.Document{}, fmt.Errorf("export events: %w", err)
	}

	days := int(window.Hours() / 24)
	return kit.Document{
		Name:    fmt.Sprintf("events_export_%ddays_%s.csv", days, time.Now().Format("20060102_150405")),
		Data:    buf.Bytes(),
		Caption: fmt.Sprintf("%d events", len(events)),
	}, nil
}

func preview(s string, n int) string {
	s = strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n]) + "..."
}
