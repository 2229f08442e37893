package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func createDraft(t *testing.T, st Store, title string) *Post {
	t.Helper()
	p := &Post{Title: title, Keywords: "a, b", Body: "<b>body</b>", Format: "info", CreatedBy: 7}
	if err := st.CreatePost(context.Background(), p); err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	return p
}

func TestPostRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	p := createDraft(t, st, "hello")
	if p.ID == 0 {
		t.Fatal("CreatePost did not assign an id")
	}

	got, err := st.GetPost(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if got.Title != "hello" || got.Body != "<b>body</b>" || got.Format != "info" {
		t.Fatalf("unexpected post: %+v", got)
	}
	if got.Status != StatusDraft {
		t.Fatalf("status = %s, want draft", got.Status)
	}
	if got.PublishAt != nil {
		t.Fatalf("draft has publish_at = %v", got.PublishAt)
	}
	if got.CreatedBy != 7 {
		t.Fatalf("created_by = %d, want 7", got.CreatedBy)
	}

	if err := st.UpdatePostContent(ctx, p.ID, "new title", "c", "new body"); err != nil {
		t.Fatalf("UpdatePostContent: %v", err)
	}
	if err := st.SetPostMedia(ctx, p.ID, kit.MediaPhoto, "file-id-1"); err != nil {
		t.Fatalf("SetPostMedia: %v", err)
	}
	got, err = st.GetPost(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPost after update: %v", err)
	}
	if got.Title != "new title" || got.Body != "new body" {
		t.Fatalf("update not applied: %+v", got)
	}
	if got.MediaKind != kit.MediaPhoto || got.MediaRef != "file-id-1" {
		t.Fatalf("media not applied: kind=%s ref=%s", got.MediaKind, got.MediaRef)
	}
}

func TestGetPostNotFound(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	if _, err := st.GetPost(context.Background(), 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := st.UpdatePostContent(context.Background(), 9999, "t", "", "b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdatePostContent err = %v, want ErrNotFound", err)
	}
}

func TestSetPostMediaRejectsUnknownKind(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	p := createDraft(t, st, "m")
	if err := st.SetPostMedia(context.Background(), p.ID, kit.MediaKind("sticker"), "x"); err == nil {
		t.Fatal("expected error for unknown media kind")
	}
}

func TestDeletePost(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	p := createDraft(t, st, "bye")
	deleted, err := st.DeletePost(ctx, p.ID)
	if err != nil || !deleted {
		t.Fatalf("DeletePost = (%v, %v), want (true, nil)", deleted, err)
	}
	deleted, err = st.DeletePost(ctx, p.ID)
	if err != nil || deleted {
		t.Fatalf("second DeletePost = (%v, %v), want (false, nil)", deleted, err)
	}
}

func TestStatusTransitions(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	at := time.Now().Add(time.Hour).Truncate(time.Millisecond).UTC()

	p := createDraft(t, st, "lifecycle")

	// draft -> scheduled
	changed, err := st.MarkScheduled(ctx, p.ID, at)
	if err != nil || !changed {
		t.Fatalf("MarkScheduled = (%v, %v), want (true, nil)", changed, err)
	}
	got, _ := st.GetPost(ctx, p.ID)
	if got.Status != StatusScheduled || got.PublishAt == nil || !got.PublishAt.Equal(at) {
		t.Fatalf("after schedule: status=%s publish_at=%v", got.Status, got.PublishAt)
	}

	// scheduled -> scheduled (reschedule) still counts as a change
	at2 := at.Add(time.Hour)
	changed, err = st.MarkScheduled(ctx, p.ID, at2)
	if err != nil || !changed {
		t.Fatalf("reschedule = (%v, %v), want (true, nil)", changed, err)
	}

	// scheduled -> published, publish_at cleared
	changed, err = st.MarkPublished(ctx, p.ID)
	if err != nil || !changed {
		t.Fatalf("MarkPublished = (%v, %v), want (true, nil)", changed, err)
	}
	got, _ = st.GetPost(ctx, p.ID)
	if got.Status != StatusPublished || got.PublishAt != nil {
		t.Fatalf("after publish: status=%s publish_at=%v", got.Status, got.PublishAt)
	}

	// published is terminal for every transition
	if changed, _ = st.MarkPublished(ctx, p.ID); changed {
		t.Fatal("second MarkPublished reported a change")
	}
	if changed, _ = st.ResetToDraft(ctx, p.ID); changed {
		t.Fatal("ResetToDraft changed a published post")
	}
	if changed, _ = st.MarkScheduled(ctx, p.ID, at); changed {
		t.Fatal("MarkScheduled changed a published post")
	}
}

func TestResetToDraftOnlyTouchesScheduled(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	p := createDraft(t, st, "r")
	if changed, _ := st.ResetToDraft(ctx, p.ID); changed {
		t.Fatal("ResetToDraft changed a draft")
	}
	if _, err := st.MarkScheduled(ctx, p.ID, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("MarkScheduled: %v", err)
	}
	changed, err := st.ResetToDraft(ctx, p.ID)
	if err != nil || !changed {
		t.Fatalf("ResetToDraft = (%v, %v), want (true, nil)", changed, err)
	}
	got, _ := st.GetPost(ctx, p.ID)
	if got.Status != StatusDraft || got.PublishAt != nil {
		t.Fatalf("after reset: status=%s publish_at=%v", got.Status, got.PublishAt)
	}
}

func TestListDuePostsOrderAndCutoff(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	second := createDraft(t, st, "second")
	first := createDraft(t, st, "first")
	future := createDraft(t, st, "future")
	if _, err := st.MarkScheduled(ctx, second.ID, base.Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}
	if _, err := st.MarkScheduled(ctx, first.ID, base.Add(-2*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if _, err := st.MarkScheduled(ctx, future.ID, base.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	due, err := st.ListDuePosts(ctx, base, 0)
	if err != nil {
		t.Fatalf("ListDuePosts: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("due = %d posts, want 2", len(due))
	}
	if due[0].ID != first.ID || due[1].ID != second.ID {
		t.Fatalf("due order = [%d %d], want oldest first [%d %d]", due[0].ID, due[1].ID, first.ID, second.ID)
	}

	limited, err := st.ListDuePosts(ctx, base, 1)
	if err != nil {
		t.Fatalf("ListDuePosts limited: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != first.ID {
		t.Fatalf("limited = %+v, want only the oldest", limited)
	}
}

func TestListPostsByStatus(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	d1 := createDraft(t, st, "d1")
	d2 := createDraft(t, st, "d2")
	s1 := createDraft(t, st, "s1")
	if _, err := st.MarkScheduled(ctx, s1.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	drafts, err := st.ListPostsByStatus(ctx, StatusDraft, 0)
	if err != nil {
		t.Fatalf("ListPostsByStatus: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("drafts = %d, want 2", len(drafts))
	}
	_ = d1
	_ = d2

	scheduled, err := st.ListPostsByStatus(ctx, StatusScheduled, 0)
	if err != nil {
		t.Fatalf("ListPostsByStatus scheduled: %v", err)
	}
	if len(scheduled) != 1 || scheduled[0].ID != s1.ID {
		t.Fatalf("scheduled = %+v", scheduled)
	}
}

func TestEventsAppendAndQuery(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	start := time.Now().UTC().Add(-time.Second)

	p1 := createDraft(t, st, "popular")
	p2 := createDraft(t, st, "quiet")

	for i := 0; i < 3; i++ {
		if err := st.AppendEvent(ctx, Event{PostID: p1.ID, Action: ActionClick, ActorID: int64(100 + i)}); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}
	if err := st.AppendEvent(ctx, Event{PostID: p2.ID, Action: ActionClick, ActorID: 200}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := st.AppendEvent(ctx, Event{PostID: p1.ID, Action: ActionPublish, Note: "timer"}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	byPost, err := st.ListEventsByPost(ctx, p1.ID)
	if err != nil {
		t.Fatalf("ListEventsByPost: %v", err)
	}
	if len(byPost) != 4 {
		t.Fatalf("events for p1 = %d, want 4", len(byPost))
	}

	clicks, err := st.CountEvents(ctx, ActionClick, start)
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if clicks != 4 {
		t.Fatalf("clicks = %d, want 4", clicks)
	}

	top, err := st.TopPostsByClicks(ctx, start, 5)
	if err != nil {
		t.Fatalf("TopPostsByClicks: %v", err)
	}
	if len(top) != 2 || top[0].PostID != p1.ID || top[0].Clicks != 3 {
		t.Fatalf("top = %+v", top)
	}

	since, err := st.ListEventsSince(ctx, start, 0)
	if err != nil {
		t.Fatalf("ListEventsSince: %v", err)
	}
	if len(since) != 5 {
		t.Fatalf("events since = %d, want 5", len(since))
	}
}

func TestCountPostsByFormat(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	for _, format := range []string{"selling", "selling", "info"} {
		p := &Post{Title: "t", Body: "b", Format: format}
		if err := st.CreatePost(ctx, p); err != nil {
			t.Fatalf("CreatePost: %v", err)
		}
	}

	counts, err := st.CountPostsByFormat(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountPostsByFormat: %v", err)
	}
	if counts["selling"] != 2 || counts["info"] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestUpsertUser(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.UpsertUser(ctx, User{TelegramID: 42, Username: "op", FirstName: "Ada"}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	u, err := st.GetUser(ctx, 42)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Username != "op" || u.FirstName != "Ada" {
		t.Fatalf("user = %+v", u)
	}

	if err := st.UpsertUser(ctx, User{TelegramID: 42, Username: "renamed"}); err != nil {
		t.Fatalf("second UpsertUser: %v", err)
	}
	u, err = st.GetUser(ctx, 42)
	if err != nil {
		t.Fatalf("GetUser after upsert: %v", err)
	}
	if u.Username != "renamed" {
		t.Fatalf("username = %s, want renamed", u.Username)
	}
	if _, err := st.GetUser(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetUser unknown err = %v, want ErrNotFound", err)
	}
}

func TestEventTimesCompareNumerically(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	p := createDraft(t, st, "timed")
	// A whole-second timestamp and a fractional one inside the same second:
	// text comparison would put "…05.3Z" before "…05Z".
	whole := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	late := whole.Add(300 * time.Millisecond)

	if err := st.AppendEvent(ctx, Event{PostID: p.ID, Action: ActionClick, Note: "whole", CreatedAt: whole}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := st.AppendEvent(ctx, Event{PostID: p.ID, Action: ActionClick, Note: "late", CreatedAt: late}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	evs, err := st.ListEventsSince(ctx, whole, 0)
	if err != nil {
		t.Fatalf("ListEventsSince: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("events since whole second = %d, want 2", len(evs))
	}
	if evs[0].Note != "late" || evs[1].Note != "whole" {
		t.Fatalf("order = %q, %q; want late, whole", evs[0].Note, evs[1].Note)
	}
	if !evs[0].CreatedAt.Equal(late) {
		t.Fatalf("CreatedAt round trip = %v, want %v", evs[0].CreatedAt, late)
	}

	n, err := st.CountEvents(ctx, ActionClick, late)
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if n != 1 {
		t.Fatalf("clicks since fractional instant = %d, want 1", n)
	}
}
