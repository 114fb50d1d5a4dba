package app

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"adventbot/internal/admin"
	"adventbot/internal/bot"
	"adventbot/internal/broadcast"
	"adventbot/internal/config"
	"adventbot/internal/events"
	"adventbot/internal/scheduler"
	"adventbot/internal/security"
	"adventbot/internal/storage"
	kit "adventbot/internal/transport"
	"adventbot/internal/transport/telegram"
	"adventbot/pkg/logx"
)

// handlerFunc is what a dispatch loop drives. Both bot handlers satisfy it.
type handlerFunc func(ctx context.Context, up kit.Update) error

// App owns all process-wide state: the two bot adapters, the stores, the
// guard, and the daily scheduler. Constructed once at startup; everything is
// passed by reference, no ambient globals.
type App struct {
	cfg *config.Config
	log logx.Logger

	logClose func() error

	registry *storage.Registry
	events   *events.Store
	guard    *security.Guard

	subAdapter *telegram.Adapter
	admAdapter *telegram.Adapter

	bcast *broadcast.Service
	sched *scheduler.Service

	subHandler *bot.Handler
	admHandler *admin.Handler

	subUpdates chan kit.Update
	admUpdates chan kit.Update

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg *config.Config) (*App, error) {
	log, logClose, err := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	if err != nil {
		return nil, err
	}

	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	registry, err := storage.Open(storage.Config{
		Path:        cfg.Storage.SQLitePath,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	store, err := events.Open(cfg.Storage.EventsPath, log.With(logx.String("comp", "events")))
	if err != nil {
		_ = registry.Close()
		return nil, err
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		_ = registry.Close()
		return nil, err
	}
	subAdapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.BotToken,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram"), logx.String("bot", "subscriber")))
	if err != nil {
		_ = registry.Close()
		return nil, err
	}
	admAdapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.AdminToken,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram"), logx.String("bot", "admin")))
	if err != nil {
		_ = registry.Close()
		return nil, err
	}

	guard := security.NewGuard(cfg.Admins, registry, log.With(logx.String("comp", "security")))

	// Broadcasts go out through the subscriber bot: that is the identity
	// subscribers talk to.
	bcast := broadcast.New(broadcast.Config{RatePerSec: cfg.Broadcast.RatePerSec},
		subAdapter, log.With(logx.String("comp", "broadcast")))

	sched, err := scheduler.New(scheduler.Config{Timezone: cfg.Schedule.Timezone},
		log.With(logx.String("comp", "scheduler")))
	if err != nil {
		_ = registry.Close()
		return nil, err
	}

	a := &App{
		cfg:        cfg,
		log:        log.With(logx.String("comp", "app")),
		logClose:   logClose,
		registry:   registry,
		events:     store,
		guard:      guard,
		subAdapter: subAdapter,
		admAdapter: admAdapter,
		bcast:      bcast,
		sched:      sched,
		subUpdates: make(chan kit.Update, 64),
		admUpdates: make(chan kit.Update, 64),
	}
	a.subHandler = bot.NewHandler(subAdapter, registry, store, log.With(logx.String("comp", "bot")))
	a.admHandler = admin.NewHandler(admAdapter, guard, store, registry, bcast, log.With(logx.String("comp", "admin")))
	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	rctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.events.Watch(rctx); err != nil {
		a.log.Warn("events watcher unavailable", logx.Err(err))
	}

	if err := a.sched.RegisterDaily(scheduler.DailyJobID, a.cfg.Schedule.DailyAt, a.dailyBroadcast); err != nil {
		cancel()
		return err
	}
	a.sched.Start()

	if err := a.subAdapter.Start(rctx, a.subUpdates); err != nil {
		cancel()
		return err
	}
	if err := a.admAdapter.Start(rctx, a.admUpdates); err != nil {
		cancel()
		return err
	}

	a.wg.Add(2)
	go a.dispatch(rctx, "subscriber", a.subUpdates, a.subHandler.HandleUpdate)
	go a.dispatch(rctx, "admin", a.admUpdates, a.admHandler.HandleUpdate)

	a.log.Info("started",
		logx.Int("admins", len(a.cfg.Admins)),
		logx.String("daily_at", a.cfg.Schedule.DailyAt),
		logx.Int("events", a.events.Len()),
	)
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	a.sched.Stop(ctx)
	_ = a.subAdapter.Stop(ctx)
	_ = a.admAdapter.Stop(ctx)
	a.wg.Wait()
	err := a.registry.Close()
	if a.logClose != nil {
		_ = a.logClose()
	}
	return err
}

// dispatch is the inbound loop for one bot. A panicking or failing handler
// never takes the loop down; failures surface in the request log.
func (a *App) dispatch(ctx context.Context, name string, updates <-chan kit.Update, handle handlerFunc) {
	defer a.wg.Done()
	log := a.log.With(logx.String("loop", name))
	for {
		select {
		case <-ctx.Done():
			return
		case up := <-updates:
			a.handleOne(ctx, log, up, handle)
		}
	}
}

func (a *App) handleOne(ctx context.Context, log logx.Logger, up kit.Update, handle handlerFunc) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in handler",
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
		}
	}()

	err := handle(ctx, up)
	d := time.Since(start)
	fields := []logx.Field{
		logx.String("kind", string(up.Kind)),
		logx.Duration("dur", d),
	}
	if err != nil {
		log.Warn("update failed", append(fields, logx.Err(err))...)
		return
	}
	if d >= 750*time.Millisecond {
		log.Info("update ok", fields...)
	} else {
		log.Debug("update ok", fields...)
	}
}

// dailyBroadcast is the daily_event job body: read the registry, pick today's
// content, fan out. Per-recipient failures are isolated inside the broadcast
// service; an empty registry is a no-op, not an error.
func (a *App) dailyBroadcast(ctx context.Context) {
	ids, err := a.registry.ListIDs(ctx)
	if err != nil {
		a.log.Error("daily broadcast: subscriber read failed", logx.Err(err))
		return
	}
	if len(ids) == 0 {
		a.log.Info("daily broadcast: no subscribers")
		return
	}

	// "Today" is decided in the scheduler's wall clock, the same one the
	// 09:00 trigger fires in.
	date := time.Now().In(a.sched.Location()).Format(events.DateLayout)
	msg := bot.NoEventMessage()
	if ev, ok := a.events.Get(date); ok {
		msg = bot.EventMessage(date, ev)
	}

	targets := make([]kit.ChatTarget, 0, len(ids))
	for _, id := range ids {
		targets = append(targets, kit.ChatTarget{ChatID: id})
	}
	a.bcast.Run(ctx, scheduler.DailyJobID, targets, msg.Text, msg.Opt)
}
