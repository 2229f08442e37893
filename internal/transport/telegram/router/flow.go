package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"postbot/internal/services/generator"
	"postbot/internal/services/publisher"
	"postbot/internal/storage"
	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
	"postbot/pkg/tgui"
)

func msgRefOf(chatID int64, messageID int) kit.MessageRef {
	return kit.MessageRef{ChatID: chatID, MessageID: messageID}
}

// The drafting conversation:
//
//	/new_post -> pick format -> keywords -> details (or /skip)
//	-> generated draft review (approve / regenerate / improve)
//	-> attach media (or /skip) -> pick day -> pick time -> scheduled
//
// Free-form text lands in handleFlowText and is interpreted by session state.

func (r *Router) handleFlowText(ctx context.Context, req *Request) error {
	text := strings.TrimSpace(req.Update.Message.Text)
	switch req.Session.State {
	case StateAwaitKeywords:
		if text == "" {
			_, err := req.Adapter.SendText(ctx, req.Chat, "Գրեք բանալի բառերը", nil)
			return err
		}
		req.Session.Keywords = text
		req.Session.State = StateAwaitDetails
		_, err := req.Adapter.SendText(ctx, req.Chat, "Լրացուցիչ մանրամասներ (գին, հղում, պայմաններ)․ կամ /skip", nil)
		return err

	case StateAwaitDetails:
		return r.generateDraft(ctx, req, text)

	case StateAwaitImprove:
		return r.improveDraft(ctx, req, text)

	case StateReview:
		_, err := req.Adapter.SendText(ctx, req.Chat, "Օգտագործեք սևագրի կոճակները, կամ /cancel", nil)
		return err

	case StateAwaitMedia:
		_, err := req.Adapter.SendText(ctx, req.Chat, "Ուղարկեք լուսանկար, վիդեո կամ GIF․ կամ /skip", nil)
		return err
	}

	_, err := req.Adapter.SendText(ctx, req.Chat, "Սկսեք /new_post-ով կամ նայեք /help", nil)
	return err
}

func (r *Router) cmdSkip(ctx context.Context, req *Request) error {
	switch req.Session.State {
	case StateAwaitDetails:
		return r.generateDraft(ctx, req, "")
	case StateAwaitMedia:
		return r.askSchedule(ctx, req)
	}
	_, err := req.Adapter.SendText(ctx, req.Chat, "Բաց թողնելու բան չկա", nil)
	return err
}

func (r *Router) cbFormatPick(ctx context.Context, req *Request, payload string) error {
	if !generator.ValidFormat(payload) {
		return fmt.Errorf("unknown post format %q", payload)
	}
	req.Session.Format = payload
	req.Session.State = StateAwaitKeywords
	msg := tgui.New().
		Title("✏️", generator.FormatName(payload)).
		Line("Գրեք բանալի բառերը (ապրանք, թեմա, զեղչ)․").
		Build()
	_, err := msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

// generateDraft calls the text generator and stores the result as a draft row.
func (r *Router) generateDraft(ctx context.Context, req *Request, details string) error {
	sess := req.Session
	if sess.Format == "" || sess.Keywords == "" {
		_, err := req.Adapter.SendText(ctx, req.Chat, "Սկսեք /new_post-ով", nil)
		return err
	}

	_, _ = req.Adapter.SendText(ctx, req.Chat, "⏳ Գեներացնում եմ տեքստը…", nil)

	body, err := req.Services.Generator.GeneratePost(ctx, sess.Format, sess.Keywords, details)
	if err != nil {
		req.Logger.Warn("generation failed", logx.Err(err))
		_, e := req.Adapter.SendText(ctx, req.Chat, "Չհաջողվեց գեներացնել տեքստը, փորձեք նորից կամ /cancel", nil)
		return e
	}

	title := firstLine(body)
	if sess.PostID == 0 {
		p := &storage.Post{
			Title:     title,
			Keywords:  sess.Keywords,
			Body:      body,
			Status:    storage.StatusDraft,
			Format:    sess.Format,
			CreatedBy: req.FromID,
		}
		if err := req.Services.Store.CreatePost(ctx, p); err != nil {
			return fmt.Errorf("create draft: %w", err)
		}
		sess.PostID = p.ID
	} else {
		if err := req.Services.Store.UpdatePostContent(ctx, sess.PostID, title, sess.Keywords, body); err != nil {
			return fmt.Errorf("update draft: %w", err)
		}
	}

	sess.State = StateReview
	return r.sendReview(ctx, req, body)
}

func (r *Router) improveDraft(ctx context.Context, req *Request, instructions string) error {
	p, err := activeDraft(ctx, req)
	if err != nil {
		return swallowNoDraft(err)
	}
	if strings.TrimSpace(instructions) == "" {
		_, err := req.Adapter.SendText(ctx, req.Chat, "Գրեք ինչ փոխել տեքստում", nil)
		return err
	}

	_, _ = req.Adapter.SendText(ctx, req.Chat, "⏳ Բարելավում եմ…", nil)

	body, err := req.Services.Generator.ImproveText(ctx, p.Body, instructions)
	if err != nil {
		req.Logger.Warn("improve failed", logx.Err(err))
		_, e := req.Adapter.SendText(ctx, req.Chat, "Չհաջողվեց, փորձեք այլ ձևակերպում", nil)
		return e
	}
	if err := req.Services.Store.UpdatePostContent(ctx, p.ID, firstLine(body), p.Keywords, body); err != nil {
		return fmt.Errorf("update draft: %w", err)
	}

	req.Session.State = StateReview
	return r.sendReview(ctx, req, body)
}

func (r *Router) sendReview(ctx context.Context, req *Request, body string) error {
	kb := tgui.NewInline().
		Row(tgui.Btn("✅ Հաստատել", tgui.Data(scopeDraft, "approve", ""))).
		Row(
			tgui.Btn("🔄 Նորից", tgui.Data(scopeDraft, "regen", "")),
			tgui.Btn("✍️ Բարելավել", tgui.Data(scopeDraft, "improve", "")),
		)
	msg := tgui.New().
		Title("👀", "Սևագիր").
		Blank().
		RawLine(tgui.Esc(body).String()).
		Inline(kb).
		Build()
	_, err := msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

func (r *Router) cbDraftApprove(ctx context.Context, req *Request, _ string) error {
	if _, err := activeDraft(ctx, req); err != nil {
		return swallowNoDraft(err)
	}
	req.Session.State = StateAwaitMedia
	kb := tgui.NewInline().Row(tgui.Btn("⏭ Առանց մեդիայի", tgui.Data(scopeDraft, "skipmedia", "")))
	msg := tgui.New().
		Line("Ուղարկեք լուսանկար, վիդեո կամ GIF փոստի համար․").
		Inline(kb).
		Build()
	_, err := msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

func (r *Router) cbDraftRegen(ctx context.Context, req *Request, _ string) error {
	p, err := activeDraft(ctx, req)
	if err != nil {
		return swallowNoDraft(err)
	}
	req.Session.Format = p.Format
	req.Session.Keywords = p.Keywords
	return r.generateDraft(ctx, req, "")
}

func (r *Router) cbDraftImprove(ctx context.Context, req *Request, _ string) error {
	if _, err := activeDraft(ctx, req); err != nil {
		return swallowNoDraft(err)
	}
	req.Session.State = StateAwaitImprove
	_, err := req.Adapter.SendText(ctx, req.Chat, "Գրեք ինչ փոխել (օրինակ՝ «ավելի կարճ», «ավելացրու էմոջի»)", nil)
	return err
}

func (r *Router) handleFlowMedia(ctx context.Context, req *Request) error {
	media := req.Update.Media
	if req.Session.State != StateAwaitMedia {
		_, err := req.Adapter.SendText(ctx, req.Chat, "Մեդիան սպասված չէ հիմա։ Սկսեք /new_post-ով", nil)
		return err
	}
	p, err := activeDraft(ctx, req)
	if err != nil {
		return swallowNoDraft(err)
	}
	if err := req.Services.Store.SetPostMedia(ctx, p.ID, media.Kind, media.Ref); err != nil {
		return fmt.Errorf("attach media: %w", err)
	}
	_, _ = req.Adapter.SendText(ctx, req.Chat, "Մեդիան կցված է ✅", nil)
	return r.askSchedule(ctx, req)
}

func (r *Router) cbDraftSkipMedia(ctx context.Context, req *Request, _ string) error {
	if _, err := activeDraft(ctx, req); err != nil {
		return swallowNoDraft(err)
	}
	return r.askSchedule(ctx, req)
}

// cbDraftSchedule enters the scheduling stage for a draft picked from /drafts.
func (r *Router) cbDraftSchedule(ctx context.Context, req *Request, payload string) error {
	postID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return err
	}
	if _, err := req.Services.Store.GetPost(ctx, postID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			_, e := req.Adapter.SendText(ctx, req.Chat, "Սևագիրն այլևս գոյություն չունի", nil)
			return e
		}
		return err
	}
	req.Session.PostID = postID
	return r.askSchedule(ctx, req)
}

func (r *Router) cbDraftDelete(ctx context.Context, req *Request, payload string) error {
	postID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return err
	}
	deleted, err := req.Services.Store.DeletePost(ctx, postID)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("Սևագիր #%d-ը ջնջված է", postID)
	if !deleted {
		text = "Սևագիրն արդեն ջնջված էր"
	}
	_, err = req.Adapter.SendText(ctx, req.Chat, text, nil)
	return err
}

// askSchedule shows the calendar for the configured timezone plus an
// immediate-publish shortcut.
func (r *Router) askSchedule(ctx context.Context, req *Request) error {
	loc := r.location(req.Config)
	now := time.Now().In(loc)
	req.Session.State = StateIdle
	req.Session.CalYear, req.Session.CalMonth = now.Year(), now.Month()

	rm := tgui.Calendar(scopeSchedule, now.Year(), now.Month(), loc)
	extra := tgui.NewInline().Row(tgui.Btn("🚀 Հրապարակել հիմա", tgui.Data(scopeSchedule, "now", ""))).Markup()
	rm.InlineKeyboard = append(rm.InlineKeyboard, extra.InlineKeyboard...)

	msg := tgui.New().
		Title("📅", "Ե՞րբ հրապարակել").
		Line("Ընտրեք օրը․").
		Markup(rm).
		Build()
	_, err := msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

func (r *Router) cbCalendarNav(ctx context.Context, req *Request, payload string) error {
	loc := r.location(req.Config)
	year, month, err := tgui.ParseCalendarMonth(payload, loc)
	if err != nil {
		return err
	}
	req.Session.CalYear, req.Session.CalMonth = year, month

	rm := tgui.Calendar(scopeSchedule, year, month, loc)
	extra := tgui.NewInline().Row(tgui.Btn("🚀 Հրապարակել հիմա", tgui.Data(scopeSchedule, "now", ""))).Markup()
	rm.InlineKeyboard = append(rm.InlineKeyboard, extra.InlineKeyboard...)

	cb := req.Update.Callback
	msg := tgui.New().Title("📅", "Ե՞րբ հրապարակել").Line("Ընտրեք օրը․").Markup(rm).Build()
	return msg.Edit(ctx, req.Adapter, msgRefOf(cb.ChatID, cb.MessageID))
}

func (r *Router) cbCalendarDay(ctx context.Context, req *Request, payload string) error {
	loc := r.location(req.Config)
	day, err := tgui.ParseCalendarDay(payload, loc)
	if err != nil {
		return err
	}
	req.Session.PickedDay = day

	msg := tgui.New().
		Title("🕒", day.Format("02.01.2006")).
		Line("Ընտրեք ժամը․").
		Markup(tgui.TimeSlots(scopeSchedule, tgui.DefaultTimeSlots())).
		Build()
	cb := req.Update.Callback
	return msg.Edit(ctx, req.Adapter, msgRefOf(cb.ChatID, cb.MessageID))
}

func (r *Router) cbTimeSlot(ctx context.Context, req *Request, payload string) error {
	if req.Session.PostID == 0 || req.Session.PickedDay.IsZero() {
		_, err := req.Adapter.SendText(ctx, req.Chat, "Նախ ընտրեք սևագիր և օր", nil)
		return err
	}
	hm, err := time.Parse("15:04", payload)
	if err != nil {
		return fmt.Errorf("bad time slot %q: %w", payload, err)
	}
	loc := r.location(req.Config)
	day := req.Session.PickedDay
	at := time.Date(day.Year(), day.Month(), day.Day(), hm.Hour(), hm.Minute(), 0, 0, loc)

	schedule := req.Services.Publisher.Schedule
	if req.Session.Rescheduling {
		schedule = req.Services.Publisher.Reschedule
	}
	switch err := schedule(ctx, req.Session.PostID, at); {
	case err == nil:
	case errors.Is(err, publisher.ErrPastTime):
		_, e := req.Adapter.SendText(ctx, req.Chat, "Ընտրված ժամն արդեն անցել է, ընտրեք ուրիշը", nil)
		return e
	case errors.Is(err, publisher.ErrAlreadyPublished):
		_, e := req.Adapter.SendText(ctx, req.Chat, "Փոստն արդեն հրապարակված է", nil)
		return e
	default:
		return err
	}

	postID := req.Session.PostID
	r.sessions.Reset(req.Chat.ChatID)
	msg := tgui.New().
		Title("✅", "Պլանավորված է").
		KV(fmt.Sprintf("Փոստ #%d", postID), at.Format("02.01.2006 15:04")).
		Line("Չեղարկելու համար՝ /scheduled").
		Build()
	_, err = msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

func (r *Router) cbPublishNow(ctx context.Context, req *Request, _ string) error {
	if req.Session.PostID == 0 {
		_, err := req.Adapter.SendText(ctx, req.Chat, "Նախ ընտրեք սևագիր", nil)
		return err
	}
	postID := req.Session.PostID
	if err := req.Services.Publisher.PublishNow(ctx, postID); err != nil {
		if errors.Is(err, publisher.ErrAlreadyPublished) {
			_, e := req.Adapter.SendText(ctx, req.Chat, "Փոստն արդեն հրապարակված է", nil)
			return e
		}
		return err
	}
	r.sessions.Reset(req.Chat.ChatID)
	_, err := req.Adapter.SendText(ctx, req.Chat, fmt.Sprintf("🚀 Փոստ #%d-ը ուղարկված է ալիք", postID), nil)
	return err
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return tgui.TruncRunes(strings.TrimSpace(s), 80)
}

func swallowNoDraft(err error) error {
	if errors.Is(err, errNoActiveDraft) {
		return nil
	}
	return err
}
