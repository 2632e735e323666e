// Package app wires the components together and owns their lifecycle:
// store → registry → scheduler → router → transport, plus the settings
// watcher that re-applies triggers on reload.
package app

import (
	"context"
	"sync"

	"github.com/coreos/go-systemd/v22/daemon"

	"tallybot/internal/clock"
	"tallybot/internal/config"
	"tallybot/internal/registry"
	"tallybot/internal/router"
	"tallybot/internal/schedule"
	"tallybot/internal/store"
	"tallybot/internal/summary"
	"tallybot/internal/transport"
	"tallybot/internal/transport/telegram"
	"tallybot/pkg/logx"
)

type App struct {
	cfg *config.Config
	log logx.Logger

	clock   *clock.Provider
	store   *store.Store
	adapter *telegram.Adapter
	sched   *schedule.Scheduler
	router  *router.Router
	manager *config.Manager

	updates chan transport.Message
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(cfg *config.Config, log logx.Logger) (*App, error) {
	ck, err := clock.New(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(store.Config{
		Path:        cfg.Store.Path,
		BusyTimeout: cfg.Store.BusyTimeout,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}

	reg, err := registry.Resolve(cfg, cfg.Settings)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	adapter, err := telegram.New(telegram.Config{Token: cfg.BotToken}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	sum := summary.New(st, ck, adapter, log.With(logx.String("comp", "summary")))

	sched := schedule.New(ck.Location(), sum.Deliver, log.With(logx.String("comp", "schedule")))
	if err := sched.Apply(reg); err != nil {
		_ = st.Close()
		return nil, err
	}

	rt := router.New(reg, st, ck, sum, adapter, log.With(logx.String("comp", "router")))

	manager := config.NewManager(cfg.SettingsPath, log.With(logx.String("comp", "config")))
	manager.SetValidator(func(s config.Settings) error {
		_, err := registry.Resolve(cfg, s)
		return err
	})
	// Seed the change detector with the exact bytes parsed at startup so
	// a touch without edits does not republish. Re-reading the file here
	// could hash content newer than what was actually applied.
	if len(cfg.SettingsRaw) > 0 {
		manager.Commit(cfg.SettingsRaw)
	}

	return &App{
		cfg:     cfg,
		log:     log,
		clock:   ck,
		store:   st,
		adapter: adapter,
		sched:   sched,
		router:  rt,
		manager: manager,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.updates = make(chan transport.Message, 256)
	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		cancel()
		return err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.router.Run(runCtx, a.updates)
	}()

	a.sched.Start(runCtx)

	sub := a.manager.Subscribe(1)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.manager.Watch(runCtx); err != nil {
			// A missing settings file is a normal deployment (env-only
			// fallback); the bot just runs without hot reload.
			a.log.Warn("settings watch unavailable", logx.Err(err))
		}
	}()
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case s, ok := <-sub:
				if !ok {
					return
				}
				a.applySettings(s)
			}
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	reg := a.router.Registry()
	a.log.Info("started",
		logx.Int("deadlines", len(reg.Deadlines)),
		logx.Int("chats", len(reg.Chats)),
		logx.Int("triggers", len(a.sched.Triggers())),
		logx.String("tz", a.clock.Location().String()))
	return nil
}

// applySettings swaps in a freshly resolved registry. The env scalars
// never change at runtime; only the settings file contents do.
func (a *App) applySettings(s config.Settings) {
	reg, err := registry.Resolve(a.cfg, s)
	if err != nil {
		a.log.Warn("settings rejected", logx.Err(err))
		return
	}
	if err := a.sched.Apply(reg); err != nil {
		a.log.Error("trigger re-apply failed", logx.Err(err))
		return
	}
	a.router.SetRegistry(reg)
	a.log.Info("registry reloaded",
		logx.Int("deadlines", len(reg.Deadlines)),
		logx.Int("chats", len(reg.Chats)),
		logx.Int("triggers", len(a.sched.Triggers())))
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if a.cancel != nil {
		a.cancel()
	}

	_ = a.adapter.Stop(ctx)
	a.sched.Stop(ctx)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("store close failed", logx.Err(err))
	}
	a.log.Info("stopped")
	return nil
}
