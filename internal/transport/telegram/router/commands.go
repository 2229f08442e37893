package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"postbot/internal/config"
	"postbot/internal/services/generator"
	"postbot/internal/services/publisher"
	"postbot/internal/storage"
	"postbot/pkg/tgui"
)

// Callback scopes used across the UI.
const (
	scopeFormat   = "fmt"   // format picker during drafting
	scopeDraft    = "draft" // review / draft list actions
	scopeSchedule = "sched" // calendar, time slots, publish-now
	scopePost     = "post"  // public CTA under channel posts
	scopeStats    = "stats" // stats window switcher
	scopeExport   = "export"
)

func (r *Router) registerAll() {
	r.register([]Command{
		{Name: "start", Description: "ծանոթացում", Handle: r.cmdStart},
		{Name: "help", Description: "օգնություն", Handle: r.cmdHelp},
		{Name: "new_post", Description: "նոր փոստ ստեղծել", Handle: r.cmdNewPost},
		{Name: "drafts", Description: "սևագրերի ցանկ", Handle: r.cmdDrafts},
		{Name: "scheduled", Description: "պլանավորված փոստեր", Handle: r.cmdScheduled},
		{Name: "stats", Description: "վիճակագրություն", Timeout: 30 * time.Second, Handle: r.cmdStats},
		{Name: "export", Description: "CSV արտահանում", Timeout: 60 * time.Second, Handle: r.cmdExport},
		{Name: "skip", Description: "բաց թողնել քայլը", Handle: r.cmdSkip},
		{Name: "cancel", Description: "ընդհատել ընթացիկ գործողությունը", Handle: r.cmdCancel},
	}, []CallbackRoute{
		{Scope: scopeFormat, Action: "pick", Handle: r.cbFormatPick},

		{Scope: scopeDraft, Action: "approve", Handle: r.cbDraftApprove},
		{Scope: scopeDraft, Action: "regen", Timeout: 90 * time.Second, Handle: r.cbDraftRegen},
		{Scope: scopeDraft, Action: "improve", Handle: r.cbDraftImprove},
		{Scope: scopeDraft, Action: "skipmedia", Handle: r.cbDraftSkipMedia},
		{Scope: scopeDraft, Action: "sched", Handle: r.cbDraftSchedule},
		{Scope: scopeDraft, Action: "del", Handle: r.cbDraftDelete},

		{Scope: scopeSchedule, Action: tgui.ActionCalendarDay, Handle: r.cbCalendarDay},
		{Scope: scopeSchedule, Action: tgui.ActionCalendarNav, Handle: r.cbCalendarNav},
		{Scope: scopeSchedule, Action: tgui.ActionCalendarNop, Handle: func(ctx context.Context, req *Request, _ string) error { return nil }},
		{Scope: scopeSchedule, Action: tgui.ActionTimeSlot, Handle: r.cbTimeSlot},
		{Scope: scopeSchedule, Action: "now", Handle: r.cbPublishNow},
		{Scope: scopeSchedule, Action: "unsched", Handle: r.cbUnschedule},
		{Scope: scopeSchedule, Action: "resched", Handle: r.cbReschedule},
		{Scope: scopeSchedule, Action: "pubnow", Handle: r.cbPublishNowByID},

		{Scope: scopePost, Action: "cta", Handle: r.cbCTAClick},

		{Scope: scopeStats, Action: "win", Timeout: 30 * time.Second, Handle: r.cbStatsWindow},
		{Scope: scopeExport, Action: "posts", Timeout: 60 * time.Second, Handle: r.cbExportPosts},
		{Scope: scopeExport, Action: "events", Timeout: 60 * time.Second, Handle: r.cbExportEvents},
	})
}

func (r *Router) cmdStart(ctx context.Context, req *Request) error {
	msg := tgui.New().
		Title("🛍", "ShoppingTime խմբագրիչ").
		Blank().
		Line("Ես օգնում եմ պատրաստել և պլանավորել ալիքի փոստերը։").
		Blank().
		Bullets(
			"/new_post — նոր փոստ ստեղծել",
			"/drafts — սևագրեր",
			"/scheduled — պլանավորվածները",
			"/stats — վիճակագրություն",
			"/help — բոլոր հրամանները",
		).
		Build()
	_, err := msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

func (r *Router) cmdHelp(ctx context.Context, req *Request) error {
	b := tgui.New().Title("ℹ️", "Հրամաններ").Blank()
	r.mu.RLock()
	for _, name := range []string{"start", "new_post", "drafts", "scheduled", "stats", "export", "skip", "cancel", "help"} {
		if c, ok := r.commands[name]; ok {
			b.KV("/"+c.Name, c.Description)
		}
	}
	r.mu.RUnlock()
	_, err := b.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

// cmdNewPost starts the drafting conversation with the format picker.
func (r *Router) cmdNewPost(ctx context.Context, req *Request) error {
	r.sessions.Reset(req.Chat.ChatID)
	req.Session = r.sessions.Get(req.Chat.ChatID)

	kb := tgui.NewInline()
	for _, f := range generator.Formats() {
		kb.Row(tgui.Btn(generator.FormatName(f), tgui.Data(scopeFormat, "pick", f)))
	}
	msg := tgui.New().
		Title("📝", "Նոր փոստ").
		Blank().
		Line("Ընտրեք փոստի ձևաչափը․").
		Inline(kb).
		Build()
	_, err := msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

func (r *Router) cmdDrafts(ctx context.Context, req *Request) error {
	posts, err := req.Services.Store.ListPostsByStatus(ctx, storage.StatusDraft, 20)
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		_, err := req.Adapter.SendText(ctx, req.Chat, "Սևագրեր չկան։ /new_post՝ նորը սկսելու համար", nil)
		return err
	}

	b := tgui.New().Title("🗂", "Սևագրեր").Blank()
	kb := tgui.NewInline()
	for i := range posts {
		p := &posts[i]
		id := strconv.FormatInt(p.ID, 10)
		b.KV(fmt.Sprintf("#%d %s", p.ID, generator.FormatName(p.Format)), tgui.TruncRunes(draftLabel(p), 60))
		kb.Row(
			tgui.Btn("📅 #"+id, tgui.Data(scopeDraft, "sched", id)),
			tgui.Btn("🗑 #"+id, tgui.Data(scopeDraft, "del", id)),
		)
	}
	_, err = b.Inline(kb).Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func (r *Router) cmdScheduled(ctx context.Context, req *Request) error {
	pending, err := req.Services.Publisher.ListPending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		_, err := req.Adapter.SendText(ctx, req.Chat, "Պլանավորված փոստեր չկան", nil)
		return err
	}

	loc := r.location(req.Config)
	b := tgui.New().Title("📅", "Պլանավորված").
		Line("✖️ չեղարկել · 📅 տեղափոխել · 🚀 հրապարակել հիմա").
		Blank()
	kb := tgui.NewInline()
	for _, p := range pending {
		id := strconv.FormatInt(p.ID, 10)
		b.KV(fmt.Sprintf("#%d", p.ID), fmt.Sprintf("%s — %s", p.PublishAt.In(loc).Format("02.01 15:04"), tgui.TruncRunes(p.Title, 40)))
		kb.Row(
			tgui.Btn("✖️ #"+id, tgui.Data(scopeSchedule, "unsched", id)),
			tgui.Btn("📅 #"+id, tgui.Data(scopeSchedule, "resched", id)),
			tgui.Btn("🚀 #"+id, tgui.Data(scopeSchedule, "pubnow", id)),
		)
	}
	_, err = b.Inline(kb).Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func (r *Router) cmdStats(ctx context.Context, req *Request) error {
	return r.sendStats(ctx, req, 24*time.Hour)
}

func (r *Router) cbStatsWindow(ctx context.Context, req *Request, payload string) error {
	win, err := time.ParseDuration(payload)
	if err != nil || win <= 0 {
		win = 24 * time.Hour
	}
	return r.sendStats(ctx, req, win)
}

func (r *Router) sendStats(ctx context.Context, req *Request, window time.Duration) error {
	sum, err := req.Services.Analytics.Summarize(ctx, window)
	if err != nil {
		return err
	}

	label := "24 ժամ"
	if window >= 7*24*time.Hour {
		label = "7 օր"
	}
	b := tgui.New().
		Title("📊", "Վիճակագրություն — "+label).
		Blank().
		KV("Հրապարակումներ", strconv.Itoa(sum.Publishes)).
		KV("CTA կլիկներ", strconv.Itoa(sum.Clicks))
	if len(sum.TopPosts) > 0 {
		b.Blank().Line("Լավագույն փոստերը․")
		for i, p := range sum.TopPosts {
			b.Line(fmt.Sprintf("%d. #%d %s — %d կլիկ", i+1, p.PostID, tgui.TruncRunes(p.Title, 30), p.Clicks))
		}
	}
	if len(sum.ByFormat) > 0 {
		b.Blank().Line("Ըստ ձևաչափի․")
		for _, f := range generator.Formats() {
			if n, ok := sum.ByFormat[f]; ok && n > 0 {
				b.KV(generator.FormatName(f), strconv.Itoa(n))
			}
		}
	}

	kb := tgui.NewInline().Row(
		tgui.Btn("24ժ", tgui.Data(scopeStats, "win", "24h")),
		tgui.Btn("7օր", tgui.Data(scopeStats, "win", "168h")),
	)
	_, err = b.Inline(kb).Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func (r *Router) cmdExport(ctx context.Context, req *Request) error {
	kb := tgui.NewInline().
		Row(tgui.Btn("📄 Փոստեր (CSV)", tgui.Data(scopeExport, "posts", ""))).
		Row(tgui.Btn("📈 Իրադարձություններ, 30 օր (CSV)", tgui.Data(scopeExport, "events", "720h")))
	msg := tgui.New().Title("📤", "Արտահանում").Line("Ընտրեք հաշվետվությունը․").Inline(kb).Build()
	_, err := msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

func (r *Router) cbExportPosts(ctx context.Context, req *Request, _ string) error {
	doc, err := req.Services.Analytics.ExportPosts(ctx)
	if err != nil {
		return err
	}
	_, err = req.Adapter.SendDocument(ctx, req.Chat, doc)
	return err
}

func (r *Router) cbExportEvents(ctx context.Context, req *Request, payload string) error {
	win, err := time.ParseDuration(payload)
	if err != nil || win <= 0 {
		win = 30 * 24 * time.Hour
	}
	doc, err := req.Services.Analytics.ExportEvents(ctx, win)
	if err != nil {
		return err
	}
	_, err = req.Adapter.SendDocument(ctx, req.Chat, doc)
	return err
}

func (r *Router) cmdCancel(ctx context.Context, req *Request) error {
	r.sessions.Reset(req.Chat.ChatID)
	_, err := req.Adapter.SendText(ctx, req.Chat, "Ընթացիկ գործողությունը ընդհատված է", nil)
	return err
}

func (r *Router) cbUnschedule(ctx context.Context, req *Request, payload string) error {
	postID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return err
	}
	changed, err := req.Services.Publisher.Cancel(ctx, postID)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("Փոստ #%d-ի պլանավորումը չեղարկված է, վերադարձված է սևագրերին", postID)
	if !changed {
		text = fmt.Sprintf("Փոստ #%d-ը պլանավորված չէ", postID)
	}
	_, err = req.Adapter.SendText(ctx, req.Chat, text, nil)
	return err
}

// cbReschedule re-enters the calendar for an already scheduled post. The
// existing schedule stays armed until a new slot is confirmed.
func (r *Router) cbReschedule(ctx context.Context, req *Request, payload string) error {
	postID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return err
	}
	p, err := req.Services.Store.GetPost(ctx, postID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			_, e := req.Adapter.SendText(ctx, req.Chat, "Փոստն այլևս գոյություն չունի", nil)
			return e
		}
		return err
	}
	if p.Status != storage.StatusScheduled {
		_, e := req.Adapter.SendText(ctx, req.Chat, fmt.Sprintf("Փոստ #%d-ը պլանավորված չէ", postID), nil)
		return e
	}
	req.Session.PostID = postID
	req.Session.Rescheduling = true
	return r.askSchedule(ctx, req)
}

// cbPublishNowByID publishes a scheduled post from the /scheduled list.
func (r *Router) cbPublishNowByID(ctx context.Context, req *Request, payload string) error {
	postID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return err
	}
	switch err := req.Services.Publisher.PublishNow(ctx, postID); {
	case err == nil:
	case errors.Is(err, publisher.ErrAlreadyPublished):
		_, e := req.Adapter.SendText(ctx, req.Chat, "Փոստն արդեն հրապարակված է", nil)
		return e
	case errors.Is(err, storage.ErrNotFound):
		_, e := req.Adapter.SendText(ctx, req.Chat, "Փոստն այլևս գոյություն չունի", nil)
		return e
	default:
		return err
	}
	_, err = req.Adapter.SendText(ctx, req.Chat, fmt.Sprintf("🚀 Փոստ #%d-ը ուղարկված է ալիք", postID), nil)
	return err
}

// cbCTAClick records an operator's click on a CTA button; non-operator clicks
// take the public path in routePublicCallback.
func (r *Router) cbCTAClick(ctx context.Context, req *Request, payload string) error {
	postID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return nil
	}
	return req.Services.Analytics.RecordClick(ctx, postID, req.FromID)
}

// location resolves the configured scheduling timezone, falling back to the
// process zone.
func (r *Router) location(cfg *config.Config) *time.Location {
	if cfg == nil || cfg.Publisher.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(cfg.Publisher.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func draftLabel(p *storage.Post) string {
	if p.Title != "" {
		return p.Title
	}
	if p.Keywords != "" {
		return p.Keywords
	}
	return p.Body
}

var errNoActiveDraft = errors.New("no active draft in session")

// activeDraft loads the post the session is working on.
func activeDraft(ctx context.Context, req *Request) (*storage.Post, error) {
	if req.Session == nil || req.Session.PostID == 0 {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "Ակտիվ սևագիր չկա։ Սկսեք /new_post-ով", nil)
		return nil, errNoActiveDraft
	}
	p, err := req.Services.Store.GetPost(ctx, req.Session.PostID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			_, _ = req.Adapter.SendText(ctx, req.Chat, "Սևագիրն այլևս գոյություն չունի", nil)
			return nil, errNoActiveDraft
		}
		return nil, err
	}
	return p, nil
}
