package router

import (
	"context"
	"fmt"

	"postbot/internal/eventbus"
	"postbot/internal/services/publisher"
	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
	"postbot/pkg/tgui"
)

// notifyLoop forwards engine outcomes (published / retrying / expired) to the
// operators as direct messages, so nobody has to watch the channel to learn a
// schedule failed.
func (r *Router) notifyLoop(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			out, isOutcome := ev.Data.(publisher.Outcome)
			if !isOutcome {
				continue
			}
			text := outcomeText(ev.Type, out)
			if text == "" {
				continue
			}
			for _, op := range r.cfgm.Get().Telegram.OperatorUserIDs {
				to := kit.ChatTarget{ChatID: op}
				if _, err := r.adapter.SendText(ctx, to, text, &kit.SendOptions{ParseMode: "HTML"}); err != nil {
					r.log.Debug("operator notify failed", logx.Int64("chat_id", op), logx.Err(err))
				}
			}
		}
	}
}

func outcomeText(typ string, out publisher.Outcome) string {
	title := tgui.TruncRunes(out.Title, 40)
	switch typ {
	case publisher.EventPublished:
		return fmt.Sprintf("✅ Փոստ #%d հրապարակվեց\n%s", out.PostID, tgui.Esc(title))
	case publisher.EventRetry:
		return fmt.Sprintf("⚠️ Փոստ #%d-ի ուղարկումը ձախողվեց (փորձ %d)\nկրկին՝ %s",
			out.PostID, out.Attempt, out.NextTry.Format("15:04"))
	case publisher.EventExpired:
		return fmt.Sprintf("❌ Փոստ #%d-ը վերադարձվեց սևագրերին\n%s", out.PostID, tgui.Esc(out.Err))
	}
	return ""
}
