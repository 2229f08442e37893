// Package router turns incoming Telegram updates into storage, generator and
// publisher calls. All interaction is operator-only; the bot ignores everyone
// not listed in telegram.operator_user_ids.
package router

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"postbot/internal/config"
	"postbot/internal/eventbus"
	rtsup "postbot/internal/runtime/supervisor"
	"postbot/internal/storage"
	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
)

type Router struct {
	mu        sync.RWMutex
	commands  map[string]Command
	callbacks map[string]map[string]CallbackRoute // scope -> action -> route

	log      logx.Logger
	adapter  kit.Adapter
	cfgm     *config.ConfigManager
	serv     *Services
	bus      eventbus.Bus
	sessions *Sessions

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	jobs chan func()
}

func New(log logx.Logger, adapter kit.Adapter, cfgm *config.ConfigManager, serv *Services, bus eventbus.Bus) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		commands:  map[string]Command{},
		callbacks: map[string]map[string]CallbackRoute{},
		log:       log.With(logx.String("comp", "router")),
		adapter:   adapter,
		cfgm:      cfgm,
		serv:      serv,
		bus:       bus,
		sessions:  NewSessions(),
		jobs:      make(chan func(), 256),
	}
	r.registerAll()
	return r
}

func (r *Router) register(cmds []Command, cbs []CallbackRoute) {
	r.mu.Lock()
	for _, c := range cmds {
		name := strings.TrimSpace(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		r.commands[name] = c
	}
	for _, cb := range cbs {
		if cb.Scope == "" || cb.Action == "" || cb.Handle == nil {
			continue
		}
		if r.callbacks[cb.Scope] == nil {
			r.callbacks[cb.Scope] = map[string]CallbackRoute{}
		}
		r.callbacks[cb.Scope][cb.Action] = cb
	}
	r.mu.Unlock()
}

// Run consumes updates until ctx is cancelled or the channel closes.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}

	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(r.log),
		rtsup.WithCancelOnError(false),
	)
	r.runMu.Lock()
	r.sup = sup
	r.running = true
	r.runMu.Unlock()

	r.log.Info("dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(r.jobs)))

	r.updateMenu(ctx)

	if r.bus != nil {
		events, unsubscribe := r.bus.Subscribe(64)
		sup.Go0("outcome.notify", func(c context.Context) {
			defer unsubscribe()
			r.notifyLoop(c, events)
		})
	}

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			r.runMu.Lock()
			r.running = false
			r.runMu.Unlock()
			close(r.jobs)
		})
	}

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("router.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-r.jobs:
					if !ok {
						return nil
					}
					if job == nil {
						continue
					}
					func() {
						defer func() {
							if rec := recover(); rec != nil {
								r.log.Error("panic in router job", logx.Int("worker", idx), logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		})
	}

	defer func() {
		closeJobs()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.runMu.Lock()
		r.sup = nil
		r.runMu.Unlock()
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				r.log.Info("dispatcher stopped (updates channel closed)")
				return nil
			}
			r.routeUpdate(ctx, up)
		}
	}
}

func (r *Router) tryEnqueue(fn func()) (ok bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
		}
	}()
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

func (r *Router) routeUpdate(root context.Context, up kit.Update) {
	cfg := r.cfgm.Get()

	fromID, chatID := updateOrigin(up)
	if fromID == 0 {
		return
	}
	if !isOperator(fromID, cfg.Telegram.OperatorUserIDs) {
		// Silently ignore strangers; CTA clicks in the channel are the one
		// exception and are handled before this check in routeCallback.
		if up.Kind == kit.UpdateCallback {
			r.routePublicCallback(root, up)
		}
		return
	}

	if up.Kind == kit.UpdateMessage && up.Message != nil {
		r.rememberUser(root, up.Message)
	}

	switch up.Kind {
	case kit.UpdateMessage:
		r.routeMessage(root, up, cfg, chatID, fromID)
	case kit.UpdateCallback:
		r.routeCallback(root, up, cfg)
	case kit.UpdateMedia:
		r.routeMedia(root, up, cfg)
	}
}

func (r *Router) routeMessage(root context.Context, up kit.Update, cfg *config.Config, chatID, fromID int64) {
	msg := up.Message
	text := strings.TrimSpace(msg.Text)

	if strings.HasPrefix(text, "/") {
		parts := strings.Fields(text)
		word := strings.TrimPrefix(parts[0], "/")
		if i := strings.IndexByte(word, '@'); i >= 0 {
			word = word[:i]
		}
		r.mu.RLock()
		cmd, ok := r.commands[word]
		r.mu.RUnlock()
		if !ok {
			_, _ = r.adapter.SendText(root, kit.ChatTarget{ChatID: chatID}, "Անհայտ հրաման։ Փորձեք /help", nil)
			return
		}
		r.dispatch(root, up, cfg, cmd.Name, cmd.Timeout, parts[1:], "", cmd.Handle)
		return
	}

	// Free text feeds the drafting conversation.
	r.dispatch(root, up, cfg, "flow:"+string(r.sessions.Get(chatID).State), 0, nil, "", r.handleFlowText)
}

func (r *Router) routeMedia(root context.Context, up kit.Update, cfg *config.Config) {
	r.dispatch(root, up, cfg, "flow:media", 0, nil, "", r.handleFlowMedia)
}

func (r *Router) routeCallback(root context.Context, up kit.Update, cfg *config.Config) {
	cb := up.Callback
	scope, action, payload := splitCallbackData(cb.Data)
	if scope == "" || action == "" {
		return
	}

	r.mu.RLock()
	route, ok := r.callbacks[scope][action]
	r.mu.RUnlock()
	if !ok {
		_ = r.adapter.AnswerCallback(root, cb.ID, "")
		return
	}

	h := func(ctx context.Context, req *Request) error { return route.Handle(ctx, req, payload) }
	r.dispatch(root, up, cfg, "cb:"+scope+":"+action, route.Timeout, nil, payload, h)
}

// routePublicCallback handles the only callback non-operators may trigger:
// the CTA button under a published channel post.
func (r *Router) routePublicCallback(root context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	scope, action, payload := splitCallbackData(cb.Data)
	if scope != "post" || action != "cta" {
		return
	}
	postID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return
	}
	if !r.tryEnqueue(func() {
		if err := r.serv.Analytics.RecordClick(root, postID, cb.FromID); err != nil {
			r.log.Warn("record click failed", logx.Int64("post_id", postID), logx.Err(err))
		}
		_ = r.adapter.AnswerCallback(root, cb.ID, "Շնորհակալություն 🙌")
	}) {
		_ = r.adapter.AnswerCallback(root, cb.ID, "")
	}
}

func (r *Router) dispatch(root context.Context, up kit.Update, cfg *config.Config, command string, timeout time.Duration, args []string, payload string, h HandlerFunc) {
	fromID, chatID := updateOrigin(up)
	rid := newReqID()
	reqLog := r.log.With(
		logx.String("rid", rid),
		logx.Int64("chat_id", chatID),
		logx.Int64("from_id", fromID),
		logx.String("cmd", command),
	)

	req := &Request{
		Update:   up,
		Chat:     kit.ChatTarget{ChatID: chatID},
		FromID:   fromID,
		Command:  command,
		Args:     args,
		Payload:  payload,
		ReqID:    rid,
		Adapter:  r.adapter,
		Config:   cfg,
		Logger:   reqLog,
		Services: r.serv,
		Session:  r.sessions.Get(chatID),
	}

	final := Chain(
		h,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(timeout),
	)

	enqueued := r.tryEnqueue(func() {
		_ = final(root, req)
		if up.Kind == kit.UpdateCallback && up.Callback != nil {
			// best-effort to stop the "loading" spinner
			_ = r.adapter.AnswerCallback(root, up.Callback.ID, "")
		}
	})
	if !enqueued {
		if up.Kind == kit.UpdateCallback && up.Callback != nil {
			_ = r.adapter.AnswerCallback(root, up.Callback.ID, "busy")
		} else {
			_, _ = r.adapter.SendText(root, req.Chat, "Զբաղված եմ, փորձեք մի պահից", nil)
		}
	}
}

// rememberUser upserts the sender so exports and access audits have names.
func (r *Router) rememberUser(ctx context.Context, msg *kit.Message) {
	u := storage.User{
		TelegramID: msg.FromID,
		Username:   msg.FromUsername,
		FirstName:  msg.FromName,
	}
	if err := r.serv.Store.UpsertUser(ctx, u); err != nil {
		r.log.Debug("upsert user failed", logx.Int64("user_id", msg.FromID), logx.Err(err))
	}
}

func updateOrigin(up kit.Update) (fromID, chatID int64) {
	switch {
	case up.Message != nil:
		return up.Message.FromID, up.Message.ChatID
	case up.Callback != nil:
		return up.Callback.FromID, up.Callback.ChatID
	case up.Media != nil:
		return up.Media.FromID, up.Media.ChatID
	}
	return 0, 0
}

func isOperator(id int64, operators []int64) bool {
	for _, o := range operators {
		if o == id {
			return true
		}
	}
	return false
}

func splitCallbackData(data string) (scope, action, payload string) {
	parts := strings.SplitN(strings.TrimSpace(data), ":", 3)
	if len(parts) < 2 {
		return "", "", ""
	}
	if len(parts) == 3 {
		payload = parts[2]
	}
	return parts[0], parts[1], payload
}

func newReqID() string {
	var b [6]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
