package router

import (
	"context"
	"sort"
	"time"

	kit "postbot/internal/transport"
)

// menuOrder pins the /menu autocomplete order; anything unlisted sorts after.
var menuOrder = []string{"new_post", "drafts", "scheduled", "stats", "export", "help"}

// updateMenu pushes the command list to Telegram's "/" autocomplete.
// Best-effort and non-blocking.
func (r *Router) updateMenu(ctx context.Context) {
	up, ok := r.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return
	}

	r.mu.RLock()
	cmds := make([]kit.BotCommand, 0, len(r.commands))
	for _, c := range r.commands {
		cmds = append(cmds, kit.BotCommand{Command: c.Name, Description: c.Description})
	}
	r.mu.RUnlock()

	rank := func(name string) int {
		for i, n := range menuOrder {
			if n == name {
				return i
			}
		}
		return len(menuOrder)
	}
	sort.Slice(cmds, func(i, j int) bool {
		ri, rj := rank(cmds[i].Command), rank(cmds[j].Command)
		if ri != rj {
			return ri < rj
		}
		return cmds[i].Command < cmds[j].Command
	})

	go func() {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_ = up.UpdateMenuCommands(cctx, cmds)
	}()
}
