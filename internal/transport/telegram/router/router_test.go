package router

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"postbot/internal/config"
	"postbot/internal/eventbus"
	"postbot/internal/services/publisher"
	"postbot/internal/storage"
	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
)

func TestSplitCallbackData(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name                   string
		data                   string
		scope, action, payload string
	}{
		{name: "full", data: "draft:approve:17", scope: "draft", action: "approve", payload: "17"},
		{name: "no payload", data: "sched:calnop", scope: "sched", action: "calnop"},
		{name: "payload with colons", data: "sched:time:18:30", scope: "sched", action: "time", payload: "18:30"},
		{name: "whitespace", data: "  post:cta:3 ", scope: "post", action: "cta", payload: "3 "},
		{name: "garbage", data: "nocolon"},
		{name: "empty", data: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			scope, action, payload := splitCallbackData(tt.data)
			if scope != tt.scope || action != tt.action || payload != tt.payload {
				t.Fatalf("splitCallbackData(%q) = (%q, %q, %q), want (%q, %q, %q)",
					tt.data, scope, action, payload, tt.scope, tt.action, tt.payload)
			}
		})
	}
}

func TestSessionsLifecycle(t *testing.T) {
	t.Parallel()
	s := NewSessions()

	sess := s.Get(10)
	if sess.State != StateIdle || sess.ChatID != 10 {
		t.Fatalf("fresh session = %+v", sess)
	}
	sess.State = StateAwaitKeywords
	sess.Format = "selling"

	again := s.Get(10)
	if again != sess || again.State != StateAwaitKeywords {
		t.Fatal("Get did not return the live session")
	}
	if other := s.Get(11); other == sess {
		t.Fatal("sessions are not isolated per chat")
	}

	s.Reset(10)
	if reset := s.Get(10); reset.State != StateIdle || reset.Format != "" {
		t.Fatalf("session after Reset = %+v", reset)
	}
}

func TestSessionExpiresAfterTTL(t *testing.T) {
	t.Parallel()
	s := NewSessions()
	sess := s.Get(10)
	sess.State = StateReview
	sess.Touched = time.Now().Add(-sessionTTL - time.Minute)

	if got := s.Get(10); got.State != StateIdle {
		t.Fatalf("stale session survived the TTL: %+v", got)
	}
}

func TestChainOrder(t *testing.T) {
	t.Parallel()
	var order []string
	mk := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *Request) error {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}
	h := Chain(func(ctx context.Context, req *Request) error {
		order = append(order, "handler")
		return nil
	}, mk("a"), mk("b"))

	if err := h(context.Background(), &Request{}); err != nil {
		t.Fatalf("chain: %v", err)
	}
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "handler" {
		t.Fatalf("order = %v", order)
	}
}

func TestMWPanicRecover(t *testing.T) {
	t.Parallel()
	h := Chain(func(ctx context.Context, req *Request) error {
		panic("boom")
	}, MWPanicRecover(logx.Nop()))

	err := h(context.Background(), &Request{})
	if err == nil {
		t.Fatal("panic was not converted to an error")
	}
	if got := err.Error(); got != "panic: boom" {
		t.Fatalf("err = %q", got)
	}
}

func TestMWTimeoutCancelsContext(t *testing.T) {
	t.Parallel()
	h := Chain(func(ctx context.Context, req *Request) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
			return nil
		}
	}, MWTimeout(20*time.Millisecond))

	err := h(context.Background(), &Request{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestMWTimeoutZeroIsNoop(t *testing.T) {
	t.Parallel()
	h := Chain(func(ctx context.Context, req *Request) error {
		if _, hasDeadline := ctx.Deadline(); hasDeadline {
			t.Fatal("zero timeout installed a deadline")
		}
		return nil
	}, MWTimeout(0))
	if err := h(context.Background(), &Request{}); err != nil {
		t.Fatalf("chain: %v", err)
	}
}

func TestMWRequestLogPassesThrough(t *testing.T) {
	t.Parallel()
	want := errors.New("handler failed")
	h := Chain(func(ctx context.Context, req *Request) error {
		return want
	}, MWRequestLog(logx.Nop()))

	req := &Request{Update: kit.Update{Kind: kit.UpdateMessage}, Chat: kit.ChatTarget{ChatID: 1}}
	if err := h(context.Background(), req); !errors.Is(err, want) {
		t.Fatalf("err = %v, want the handler error", err)
	}
}

// recordingAdapter captures outgoing sends so handler tests can inspect
// texts and keyboards.
type recordingAdapter struct {
	mu    sync.Mutex
	texts []string
	opts  []*kit.SendOptions
}

func (a *recordingAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (a *recordingAdapter) Stop(ctx context.Context) error                         { return nil }

func (a *recordingAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.texts = append(a.texts, text)
	a.opts = append(a.opts, opt)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(a.texts)}, nil
}

func (a *recordingAdapter) SendMedia(ctx context.Context, to kit.ChatTarget, kind kit.MediaKind, ref, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return a.SendText(ctx, to, caption, opt)
}

func (a *recordingAdapter) SendDocument(ctx context.Context, to kit.ChatTarget, doc kit.Document) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}

func (a *recordingAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	_, err := a.SendText(ctx, kit.ChatTarget{ChatID: ref.ChatID}, text, opt)
	return err
}

func (a *recordingAdapter) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return nil
}

func (a *recordingAdapter) lastMarkup(t *testing.T) *tele.ReplyMarkup {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := len(a.opts) - 1; i >= 0; i-- {
		if a.opts[i] == nil || a.opts[i].ReplyMarkupAdapter == nil {
			continue
		}
		rm, ok := a.opts[i].ReplyMarkupAdapter.(*tele.ReplyMarkup)
		if !ok {
			t.Fatalf("markup type = %T", a.opts[i].ReplyMarkupAdapter)
		}
		return rm
	}
	t.Fatal("no send carried a keyboard")
	return nil
}

func (a *recordingAdapter) lastText(t *testing.T) string {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.texts) == 0 {
		t.Fatal("nothing was sent")
	}
	return a.texts[len(a.texts)-1]
}

// stubPublisher records which engine operation each handler picked.
type stubPublisher struct {
	scheduled    []int64
	rescheduled  []int64
	publishedNow []int64
	lastAt       time.Time
	pending      []publisher.PendingPost
	publishErr   error
}

func (p *stubPublisher) Schedule(ctx context.Context, postID int64, at time.Time) error {
	p.scheduled = append(p.scheduled, postID)
	p.lastAt = at
	return nil
}

func (p *stubPublisher) Reschedule(ctx context.Context, postID int64, at time.Time) error {
	p.rescheduled = append(p.rescheduled, postID)
	p.lastAt = at
	return nil
}

func (p *stubPublisher) Cancel(ctx context.Context, postID int64) (bool, error) { return true, nil }

func (p *stubPublisher) PublishNow(ctx context.Context, postID int64) error {
	if p.publishErr != nil {
		return p.publishErr
	}
	p.publishedNow = append(p.publishedNow, postID)
	return nil
}

func (p *stubPublisher) ListPending(ctx context.Context) ([]publisher.PendingPost, error) {
	return p.pending, nil
}

// stubStore serves GetPost from a map; handler tests touch nothing else.
type stubStore struct {
	storage.Store
	posts map[int64]*storage.Post
}

func (s *stubStore) GetPost(ctx context.Context, id int64) (*storage.Post, error) {
	p, ok := s.posts[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func newHandlerHarness(t *testing.T) (*Router, *recordingAdapter, *stubPublisher, *stubStore, *Request) {
	t.Helper()
	ad := &recordingAdapter{}
	pub := &stubPublisher{}
	st := &stubStore{posts: map[int64]*storage.Post{}}
	serv := &Services{Store: st, Publisher: pub}
	r := New(logx.Nop(), ad, nil, serv, eventbus.New())
	chat := kit.ChatTarget{ChatID: 42}
	req := &Request{
		Chat:     chat,
		FromID:   42,
		Adapter:  ad,
		Config:   &config.Config{},
		Logger:   logx.Nop(),
		Services: serv,
		Session:  r.sessions.Get(chat.ChatID),
	}
	return r, ad, pub, st, req
}

func TestScheduledListOffersItemActions(t *testing.T) {
	t.Parallel()
	r, ad, pub, _, req := newHandlerHarness(t)
	pub.pending = []publisher.PendingPost{{ID: 5, Title: "sale", PublishAt: time.Now().Add(time.Hour)}}

	if err := r.cmdScheduled(context.Background(), req); err != nil {
		t.Fatalf("cmdScheduled: %v", err)
	}

	rm := ad.lastMarkup(t)
	want := map[string]bool{
		"sched:unsched:5": false,
		"sched:resched:5": false,
		"sched:pubnow:5":  false,
	}
	for _, row := range rm.InlineKeyboard {
		for _, b := range row {
			if _, ok := want[b.Data]; ok {
				want[b.Data] = true
			}
		}
	}
	for data, found := range want {
		if !found {
			t.Fatalf("button %q missing from scheduled list", data)
		}
	}
}

func TestRescheduleReentersCalendar(t *testing.T) {
	t.Parallel()
	r, ad, _, st, req := newHandlerHarness(t)
	st.posts[7] = &storage.Post{ID: 7, Title: "move me", Status: storage.StatusScheduled}

	if err := r.cbReschedule(context.Background(), req, "7"); err != nil {
		t.Fatalf("cbReschedule: %v", err)
	}
	if req.Session.PostID != 7 || !req.Session.Rescheduling {
		t.Fatalf("session = %+v, want PostID 7 rescheduling", req.Session)
	}
	// The calendar keyboard must be on the reply.
	rm := ad.lastMarkup(t)
	found := false
	for _, row := range rm.InlineKeyboard {
		for _, b := range row {
			if strings.Contains(b.Data, "sched:calday:") {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("reschedule reply carries no calendar days")
	}
}

func TestRescheduleRejectsUnscheduledPost(t *testing.T) {
	t.Parallel()
	r, _, _, st, req := newHandlerHarness(t)
	st.posts[8] = &storage.Post{ID: 8, Status: storage.StatusDraft}

	if err := r.cbReschedule(context.Background(), req, "8"); err != nil {
		t.Fatalf("cbReschedule: %v", err)
	}
	if req.Session.Rescheduling {
		t.Fatal("draft post must not enter reschedule mode")
	}
}

func TestTimeSlotMovesExistingSchedule(t *testing.T) {
	t.Parallel()
	r, _, pub, _, req := newHandlerHarness(t)
	req.Session.PostID = 7
	req.Session.Rescheduling = true
	req.Session.PickedDay = time.Date(2100, 6, 1, 0, 0, 0, 0, time.Local)

	if err := r.cbTimeSlot(context.Background(), req, "18:30"); err != nil {
		t.Fatalf("cbTimeSlot: %v", err)
	}
	if len(pub.rescheduled) != 1 || pub.rescheduled[0] != 7 {
		t.Fatalf("rescheduled = %v, want [7]", pub.rescheduled)
	}
	if len(pub.scheduled) != 0 {
		t.Fatalf("scheduled = %v, want empty", pub.scheduled)
	}
	if h, m, _ := pub.lastAt.Clock(); h != 18 || m != 30 {
		t.Fatalf("slot time = %02d:%02d, want 18:30", h, m)
	}
	if r.sessions.Get(42).PostID != 0 {
		t.Fatal("session not reset after confirming a slot")
	}
}

func TestTimeSlotSchedulesFreshDraft(t *testing.T) {
	t.Parallel()
	r, _, pub, _, req := newHandlerHarness(t)
	req.Session.PostID = 3
	req.Session.PickedDay = time.Date(2100, 6, 1, 0, 0, 0, 0, time.Local)

	if err := r.cbTimeSlot(context.Background(), req, "09:00"); err != nil {
		t.Fatalf("cbTimeSlot: %v", err)
	}
	if len(pub.scheduled) != 1 || pub.scheduled[0] != 3 {
		t.Fatalf("scheduled = %v, want [3]", pub.scheduled)
	}
	if len(pub.rescheduled) != 0 {
		t.Fatalf("rescheduled = %v, want empty", pub.rescheduled)
	}
}

func TestPublishNowFromScheduledList(t *testing.T) {
	t.Parallel()
	r, _, pub, _, req := newHandlerHarness(t)

	if err := r.cbPublishNowByID(context.Background(), req, "9"); err != nil {
		t.Fatalf("cbPublishNowByID: %v", err)
	}
	if len(pub.publishedNow) != 1 || pub.publishedNow[0] != 9 {
		t.Fatalf("publishedNow = %v, want [9]", pub.publishedNow)
	}
}

func TestPublishNowFromListAlreadyPublished(t *testing.T) {
	t.Parallel()
	r, ad, pub, _, req := newHandlerHarness(t)
	pub.publishErr = publisher.ErrAlreadyPublished

	if err := r.cbPublishNowByID(context.Background(), req, "9"); err != nil {
		t.Fatalf("cbPublishNowByID: %v", err)
	}
	if got := ad.lastText(t); !strings.Contains(got, "արդեն հրապարակված") {
		t.Fatalf("reply = %q, want already-published notice", got)
	}
}
