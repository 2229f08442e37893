package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"postbot/internal/config"
	"postbot/internal/eventbus"
	rtsup "postbot/internal/runtime/supervisor"
	"postbot/internal/services/analytics"
	"postbot/internal/services/generator"
	"postbot/internal/services/publisher"
	"postbot/internal/storage"
	kit "postbot/internal/transport"
	telegram "postbot/internal/transport/telegram/adapter"
	"postbot/internal/transport/telegram/router"
	logx "postbot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter

	gen  *generator.Client
	pub  *publisher.Service
	anal *analytics.Service

	router *router.Router

	// channelID is the resolved numeric id of telegram.channel.
	// Written once in Start and again when the handle changes on reload.
	channelID int64

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// Adapter config mapping
	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
		RatePerSec:  float64(cfg.Telegram.RatePerSec),
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// Logging service mapping
	// Important: logx.New() calls Apply() immediately. If Telegram logging is enabled but the target
	// chat isn't configured yet, Apply() will emit a warning. To avoid a false-positive warning,
	// we bootstrap with Telegram logging disabled, set the target, then Apply() the final config.
	baseLogCfg := mapLogxConfig(cfg)
	baseLogCfg.Telegram.Enabled = false
	logSvc, log := logx.New(baseLogCfg, ad)
	log = log.With(logx.String("comp", "app"))

	if chatID := parseChatID(cfg.Telegram.GroupLog); chatID != 0 {
		logSvc.SetTelegramTarget(chatID)
	}
	logSvc.Apply(mapLogxConfig(cfg))

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	gcfg, err := mapGeneratorConfig(cfg)
	if err != nil {
		return nil, err
	}
	gen := generator.New(gcfg, log)

	anal := analytics.New(store, log.With(logx.String("comp", "analytics")))

	// Channel id is resolved after the adapter is up; until then the
	// publisher carries a zero target and stays un-started.
	pcfg, err := mapPublisherConfig(cfg, 0)
	if err != nil {
		return nil, err
	}
	pub := publisher.New(pcfg, store, ad, bus, log.With(logx.String("comp", "publisher")))

	rt := router.New(log.With(logx.String("comp", "router")), ad, cfgm, &router.Services{
		Store:     store,
		Publisher: pub,
		Generator: gen,
		Analytics: anal,
	}, bus)

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		gen:     gen,
		pub:     pub,
		anal:    anal,
		router:  rt,
		updates: make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			return fmt.Errorf("telegram.token is required")
		}
		if len(cfg.Telegram.OperatorUserIDs) == 0 {
			return fmt.Errorf("telegram.operator_user_ids must list at least one user")
		}
		if strings.TrimSpace(cfg.Telegram.Channel) == "" {
			return fmt.Errorf("telegram.channel is required")
		}
		if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
			return err
		}
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapPublisherConfig(cfg, 0); err != nil {
			return err
		}
		if _, err := mapGeneratorConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	cfg := a.cfgm.Get()
	chatID, err := a.resolveChannel(a.sup.Context(), cfg.Telegram.Channel)
	if err != nil {
		return fmt.Errorf("resolve telegram.channel: %w", err)
	}
	a.channelID = chatID

	pcfg, err := mapPublisherConfig(cfg, chatID)
	if err != nil {
		return err
	}
	a.pub.Apply(pcfg)
	if err := a.pub.Start(a.sup.Context()); err != nil {
		return err
	}

	a.sup.Go("router.run", func(c context.Context) error {
		return a.router.Run(c, a.updates)
	})

	// Optional: log events for observability/debug (components can also subscribe themselves).
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Debug("config change summary", fields...)
				} else {
					a.log.Debug("config reload received, but no effective changes detected")
				}
				prevCfg := lastApplied
				lastApplied = newCfg

				for _, s := range sections {
					if s == "storage" {
						a.log.Warn("storage config changed; restart required for changes to take effect")
						break
					}
				}

				// update log target first (so Apply() doesn't warn when Telegram logging is enabled)
				a.logs.SetTelegramTarget(parseChatID(newCfg.Telegram.GroupLog))
				a.logs.Apply(mapLogxConfig(newCfg))

				if gcfg, err := mapGeneratorConfig(newCfg); err != nil {
					a.log.Warn("invalid openai config; keeping previous", logx.Err(err))
				} else {
					a.gen.Apply(gcfg)
				}

				a.applyPublisherConfig(c, prevCfg, newCfg)

				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Info("config reloaded", fields...)
				} else {
					a.log.Info("config reloaded (no changes)")
				}
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyPublisherConfig handles a hot reload of the publisher section,
// re-resolving the channel handle when it changed and flipping the
// engine on or off when publisher.enabled changed.
func (a *App) applyPublisherConfig(ctx context.Context, prevCfg, newCfg *config.Config) {
	chatID := a.channelID
	if prevCfg == nil || prevCfg.Telegram.Channel != newCfg.Telegram.Channel {
		id, err := a.resolveChannel(ctx, newCfg.Telegram.Channel)
		if err != nil {
			a.log.Warn("cannot resolve new channel; keeping previous", logx.Err(err))
		} else {
			chatID = id
			a.channelID = id
		}
	}

	pcfg, err := mapPublisherConfig(newCfg, chatID)
	if err != nil {
		a.log.Warn("invalid publisher config; keeping previous", logx.Err(err))
		return
	}

	prevEnabled := prevCfg != nil && prevCfg.Publisher.Enabled
	a.pub.Apply(pcfg)
	switch {
	case prevEnabled && !pcfg.Enabled:
		a.log.Info("publisher disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.pub.Stop(stopCtx)
		cancel()
	case !prevEnabled && pcfg.Enabled:
		a.log.Info("publisher enabled via config")
		if err := a.pub.Start(ctx); err != nil {
			a.log.Warn("publisher start failed", logx.Err(err))
		}
	default:
		// Interval changes need a restart of the cron loops to take effect.
		if pcfg.Enabled && prevCfg != nil && prevCfg.Publisher != newCfg.Publisher {
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.pub.Stop(stopCtx)
			cancel()
			if err := a.pub.Start(ctx); err != nil {
				a.log.Warn("publisher restart failed", logx.Err(err))
			}
		}
	}
}

func (a *App) resolveChannel(ctx context.Context, handle string) (int64, error) {
	rctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return a.adapter.ResolveChat(rctx, handle)
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.String("err", err.Error()))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			// Contract: fn MUST honor stepCtx and return promptly. If it doesn't, log a leak signal.
			elapsed := time.Since(start)
			a.log.Warn(
				"stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.String("err", stepCtx.Err().Error()),
				logx.Duration("elapsed", elapsed),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.String("err", err.Error()), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// Publisher first so no send races the adapter teardown.
	step("publisher", 3*time.Second, func(c context.Context) error { return a.pub.Stop(c) })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })

	// Finally, wait for supervised goroutines (config watch/reload, router workers, etc.)
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

func parseChatID(raw string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
