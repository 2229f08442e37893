package analytics

import (
	"context"
	"encoding/csv"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"postbot/internal/storage"
	logx "postbot/pkg/logx"
)

func openTestService(t *testing.T) (*Service, storage.Store) {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return New(st, logx.Nop()), st
}

func createPost(t *testing.T, st storage.Store, title, format string) *storage.Post {
	t.Helper()
	p := &storage.Post{Title: title, Body: "body text", Format: format}
	if err := st.CreatePost(context.Background(), p); err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	return p
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	s, st := openTestService(t)
	ctx := context.Background()

	hot := createPost(t, st, "hot", "selling")
	cold := createPost(t, st, "cold", "info")

	if err := st.AppendEvent(ctx, storage.Event{PostID: hot.ID, Action: storage.ActionPublish}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := s.RecordClick(ctx, hot.ID, int64(100+i)); err != nil {
			t.Fatalf("RecordClick: %v", err)
		}
	}
	if err := s.RecordClick(ctx, cold.ID, 200); err != nil {
		t.Fatalf("RecordClick: %v", err)
	}

	sum, err := s.Summarize(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.Publishes != 1 {
		t.Fatalf("publishes = %d, want 1", sum.Publishes)
	}
	if sum.Clicks != 4 {
		t.Fatalf("clicks = %d, want 4", sum.Clicks)
	}
	if len(sum.TopPosts) == 0 || sum.TopPosts[0].PostID != hot.ID || sum.TopPosts[0].Clicks != 3 {
		t.Fatalf("top posts = %+v", sum.TopPosts)
	}
	if sum.ByFormat["selling"] != 1 || sum.ByFormat["info"] != 1 {
		t.Fatalf("by format = %v", sum.ByFormat)
	}
}

func TestExportPosts(t *testing.T) {
	t.Parallel()
	s, st := openTestService(t)
	ctx := context.Background()

	p := createPost(t, st, "exported", "promo")
	if err := s.RecordClick(ctx, p.ID, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordClick(ctx, p.ID, 2); err != nil {
		t.Fatal(err)
	}

	doc, err := s.ExportPosts(ctx)
	if err != nil {
		t.Fatalf("ExportPosts: %v", err)
	}
	if !strings.HasPrefix(doc.Name, "posts_export_") || !strings.HasSuffix(doc.Name, ".csv") {
		t.Fatalf("doc name = %q", doc.Name)
	}

	rows, err := csv.NewReader(strings.NewReader(string(doc.Data))).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("csv rows = %d, want header + 1 post", len(rows))
	}
	header, rec := rows[0], rows[1]
	if header[0] != "Post ID" || header[len(header)-1] != "Clicks" {
		t.Fatalf("header = %v", header)
	}
	if rec[1] != "exported" || rec[2] != "promo" || rec[len(rec)-1] != "2" {
		t.Fatalf("record = %v", rec)
	}
}

func TestExportEvents(t *testing.T) {
	t.Parallel()
	s, st := openTestService(t)
	ctx := context.Background()

	p := createPost(t, st, "e", "info")
	if err := st.AppendEvent(ctx, storage.Event{PostID: p.ID, Action: storage.ActionPublish, Note: "timer"}); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordClick(ctx, p.ID, 55); err != nil {
		t.Fatal(err)
	}

	doc, err := s.ExportEvents(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("ExportEvents: %v", err)
	}
	if !strings.Contains(doc.Name, "7days") {
		t.Fatalf("doc name = %q", doc.Name)
	}
	rows, err := csv.NewReader(strings.NewReader(string(doc.Data))).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("csv rows = %d, want header + 2 events", len(rows))
	}
	actions := map[string]bool{}
	for _, r := range rows[1:] {
		actions[r[2]] = true
	}
	if !actions[storage.ActionPublish] || !actions[storage.ActionClick] {
		t.Fatalf("actions = %v", actions)
	}
}

func TestPreviewTruncatesRunes(t *testing.T) {
	t.Parallel()
	if got := preview("line one\nline two", 100); got != "line one line two" {
		t.Fatalf("preview = %q", got)
	}
	long := strings.Repeat("հ", 120)
	got := preview(long, 100)
	if !strings.HasSuffix(got, "...") || len([]rune(got)) != 103 {
		t.Fatalf("truncated preview = %q (%d runes)", got, len([]rune(got)))
	}
}
