package publisher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"postbot/internal/eventbus"
	"postbot/internal/storage"
	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
)

type Service struct {
	store storage.Store
	tg    kit.Adapter
	bus   eventbus.Bus
	log   logx.Logger
	clock clockwork.Clock

	mu       sync.Mutex
	cfg      Config
	running  bool
	runCtx   context.Context
	runStop  context.CancelFunc
	cron     *cron.Cron
	timers   map[int64]clockwork.Timer
	inFlight map[int64]struct{}
	attempts map[int64]int
	// retryAt records the in-memory backoff deadline per post so the sweep
	// does not undercut the retry delay. Lost on restart, which only means a
	// crashed process retries immediately.
	retryAt map[int64]time.Time

	wg sync.WaitGroup
}

type Option func(*Service)

// WithClock substitutes the wall clock (tests use clockwork.NewFakeClock).
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func New(cfg Config, store storage.Store, tg kit.Adapter, bus eventbus.Bus, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		store:    store,
		tg:       tg,
		bus:      bus,
		log:      log.With(logx.String("comp", "publisher"), logx.String("engine_id", uuid.NewString()[:8])),
		clock:    clockwork.NewRealClock(),
		cfg:      cfg.withDefaults(),
		timers:   map[int64]clockwork.Timer{},
		inFlight: map[int64]struct{}{},
		attempts: map[int64]int{},
		retryAt:  map[int64]time.Time{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Apply swaps the runtime tunables. Interval changes take effect on the next
// Start; retry/grace/batch changes apply immediately.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

func (s *Service) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	cfg := s.cfg
	if !cfg.Enabled {
		s.mu.Unlock()
		s.log.Info("publisher disabled by config")
		return nil
	}
	s.running = true
	s.runCtx, s.runStop = context.WithCancel(ctx)
	runCtx := s.runCtx

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", cfg.SweepInterval), func() { s.sweep(runCtx) }); err != nil {
		s.running = false
		s.runStop()
		s.mu.Unlock()
		return fmt.Errorf("register sweep: %w", err)
	}
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", cfg.CleanupEvery), func() { s.cleanup(runCtx) }); err != nil {
		s.running = false
		s.runStop()
		s.mu.Unlock()
		return fmt.Errorf("register cleanup: %w", err)
	}
	s.cron = c
	s.mu.Unlock()

	// Recover schedules left behind by a previous process before arming cron:
	// overdue posts fire right away, future ones get fresh timers.
	s.rearmAll(runCtx)
	s.sweep(runCtx)

	c.Start()
	s.log.Info("publisher started",
		logx.Duration("sweep_interval", cfg.SweepInterval),
		logx.Duration("retry_delay", cfg.RetryDelay),
		logx.Duration("grace_period", cfg.GracePeriod))
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stop := s.runStop
	c := s.cron
	s.cron = nil
	for id, t := range s.timers {
		stopAndDrainTimer(t)
		delete(s.timers, id)
	}
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("publisher stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn("publisher stop timed out", logx.Err(ctx.Err()))
		return ctx.Err()
	}
}

// rearmAll restores timers for every scheduled post with a future publish_at.
// Overdue posts are left to the sweep that follows.
func (s *Service) rearmAll(ctx context.Context) {
	posts, err := s.store.ListPostsByStatus(ctx, storage.StatusScheduled, 0)
	if err != nil {
		s.log.Error("rearm: list scheduled posts failed", logx.Err(err))
		return
	}
	now := s.clock.Now()
	n := 0
	for i := range posts {
		p := &posts[i]
		if p.PublishAt == nil || !p.PublishAt.After(now) {
			continue
		}
		s.armTimer(ctx, p.ID, *p.PublishAt)
		n++
	}
	if n > 0 {
		s.log.Info("restored timers for scheduled posts", logx.Int("count", n))
	}
}

func (s *Service) snapshotCfg() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Service) publishEvent(typ string, out Outcome) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.clock.Now(), Data: out})
}
