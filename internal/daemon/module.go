package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/velora/pushsync/internal/bus"
	"github.com/velora/pushsync/internal/cache"
	"github.com/velora/pushsync/internal/composer"
	"github.com/velora/pushsync/internal/config"
	"github.com/velora/pushsync/internal/convo"
	"github.com/velora/pushsync/internal/engine"
	"github.com/velora/pushsync/internal/lock"
	"github.com/velora/pushsync/internal/logging"
	"github.com/velora/pushsync/internal/notify"
	"github.com/velora/pushsync/internal/profile"
	"github.com/velora/pushsync/internal/recorder"
	"github.com/velora/pushsync/internal/remote"
	"github.com/velora/pushsync/internal/status"
	"github.com/velora/pushsync/internal/stream"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	ConfigPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideCache,
			provideRemote,
			provideStore,
			provideToastCenter,
			provideDispatcher,
			provideComposer,
			provideRecorder,
			provideStreamClient,
			provideEngine,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = profile.ConfigPath()
	}
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		// First run: write the default template so the operator has a
		// file to fill in. The daemon still cannot start without URLs.
		if werr := config.Save(path, config.Default()); werr != nil {
			return nil, werr
		}
		return nil, fmt.Errorf("config: wrote template to %s; set api.base_url and stream.url", path)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Stream.URL == "" {
		return nil, errors.New("config: stream.url is not set")
	}
	if cfg.API.BaseURL == "" {
		return nil, errors.New("config: api.base_url is not set")
	}
	switch cfg.Stream.Transport {
	case "sse", "websocket":
	default:
		return nil, fmt.Errorf("config: unknown stream.transport %q", cfg.Stream.Transport)
	}
	return cfg, nil
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideCache(p Params, _ *lock.Lock, logger *zap.Logger) (*cache.DB, error) {
	dbPath := profile.CachePath(p.ProfileName)
	db, err := cache.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("cache initialized", zap.String("path", dbPath))
	return db, nil
}

func provideRemote(cfg *config.Config, logger *zap.Logger) *remote.Client {
	return remote.NewClient(cfg.API.BaseURL, logger)
}

func provideStore(rc *remote.Client, b *bus.Bus, logger *zap.Logger) *convo.Store {
	return convo.NewStore(rc, b, logger)
}

func provideToastCenter(b *bus.Bus) *notify.Center {
	return notify.NewCenter(b, notify.DefaultToastTTL)
}

func provideDispatcher(center *notify.Center, logger *zap.Logger) *notify.Dispatcher {
	// The daemon has no speaker; chime playback belongs to whatever
	// frontend subscribes to the notify.* topics.
	return notify.NewDispatcher(center, nil, logger)
}

func provideComposer(cfg *config.Config, rc *remote.Client, logger *zap.Logger) *composer.Composer {
	return composer.New(rc, rc, cfg.Compose.MaxTextLength, logger)
}

func provideRecorder(logger *zap.Logger) *recorder.Recorder {
	return recorder.New(recorder.NoDevice{}, logger)
}

func provideStreamClient(cfg *config.Config, rc *remote.Client, store *convo.Store, m *status.Machine, b *bus.Bus, logger *zap.Logger) *stream.Client {
	refresh := func(ctx context.Context) error {
		convs, err := rc.FetchConversations(ctx)
		if err != nil {
			return err
		}
		store.ReplaceAll(convs)
		return nil
	}
	var transport stream.Transport = stream.NewSSETransport()
	if cfg.Stream.Transport == "websocket" {
		transport = stream.NewWebSocketTransport()
	}
	return stream.NewClient(stream.Config{
		URL:            cfg.Stream.URL,
		ReconnectDelay: cfg.Stream.ReconnectDelay(),
		PollInterval:   cfg.Stream.PollInterval(),
	}, transport, m, b, refresh, logger)
}

func provideEngine(client *stream.Client, store *convo.Store, dispatcher *notify.Dispatcher, comp *composer.Composer, rec *recorder.Recorder, b *bus.Bus, logger *zap.Logger) *engine.Engine {
	return engine.New(client, store, dispatcher, comp, rec, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, eng *engine.Engine, db *cache.DB, lk *lock.Lock, logger *zap.Logger) {
	// persistCh is written by store subscriber callbacks and is never
	// closed: a callback copied out by the store just before unsubscribe
	// may still fire afterwards, and a send on a closed channel panics.
	// The persist goroutine exits via quit instead.
	persistCh := make(chan struct{}, 1)
	quit := make(chan struct{})
	persistDone := make(chan struct{})
	var unsubscribe func()

	persist := func() {
		if err := db.ReplaceAll(eng.Conversations.Snapshot()); err != nil {
			logger.Warn("persist conversations", zap.Error(err))
		}
	}

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Warm the store from the last persisted list so the first
			// snapshot is populated before the initial refetch lands.
			if convs, err := db.ListConversations(); err != nil {
				logger.Warn("warm from cache", zap.Error(err))
			} else if len(convs) > 0 {
				eng.Conversations.ReplaceAll(convs)
				logger.Info("warmed from cache", zap.Int("conversations", len(convs)))
			}

			eng.Start(context.Background())

			// Write-behind: coalesce change notifications and persist the
			// current snapshot off the notification path.
			unsubscribe = eng.Conversations.Subscribe(func() {
				select {
				case persistCh <- struct{}{}:
				default:
				}
			})
			go func() {
				defer close(persistDone)
				for {
					select {
					case <-persistCh:
						persist()
					case <-quit:
						return
					}
				}
			}()

			return nil
		},
		OnStop: func(_ context.Context) error {
			// Stop the event sources first so the store quiesces, then
			// detach the persister and take the final snapshot.
			eng.Stop()
			if unsubscribe != nil {
				unsubscribe()
			}
			close(quit)
			<-persistDone

			persist()
			if err := db.Close(); err != nil {
				logger.Warn("close cache db", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
