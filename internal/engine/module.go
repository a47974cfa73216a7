package engine

import (
	"context"

	"github.com/nocdem/dna-messenger-sub010/internal/api"
	"github.com/nocdem/dna-messenger-sub010/internal/bus"
	"github.com/nocdem/dna-messenger-sub010/internal/config"
	"github.com/nocdem/dna-messenger-sub010/internal/conn"
	"github.com/nocdem/dna-messenger-sub010/internal/conversation"
	"github.com/nocdem/dna-messenger-sub010/internal/ingest"
	"github.com/nocdem/dna-messenger-sub010/internal/lock"
	"github.com/nocdem/dna-messenger-sub010/internal/logging"
	"github.com/nocdem/dna-messenger-sub010/internal/outbox"
	"github.com/nocdem/dna-messenger-sub010/internal/profile"
	"github.com/nocdem/dna-messenger-sub010/internal/store"
	"github.com/nocdem/dna-messenger-sub010/internal/transport"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the engine, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("engine",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideConfig,
			provideArchive,
			provideConversations,
			provideAdapter,
			provideIngest,
			provideSender,
			provideQueue,
			provideOutbox,
			provideHandler,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *conn.Machine {
	return conn.NewMachine(b)
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

func provideConfig(logger *zap.Logger) *config.Config {
	cfg, err := config.Load(profile.ConfigPath())
	if err != nil {
		logger.Info("no config file, using defaults", zap.String("path", profile.ConfigPath()))
		return &config.Config{}
	}
	return cfg
}

func provideArchive(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.ArchiveDBPath(p.ProfileName)
	db, err := store.Open(dbPath)
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
	logger.Info("archive initialized", zap.String("path", dbPath))
	return db, nil
}

func provideConversations() *conversation.Store {
	return conversation.NewStore()
}

func provideAdapter(p Params, cfg *config.Config, machine *conn.Machine, b *bus.Bus, logger *zap.Logger) (*transport.Adapter, error) {
	return transport.NewAdapter(profile.IdentityPath(p.ProfileName), cfg, machine, b, logger)
}

func provideIngest(convs *conversation.Store, db *store.DB, b *bus.Bus, logger *zap.Logger) *ingest.Engine {
	return ingest.NewEngine(convs, db, b, logger)
}

func provideSender(convs *conversation.Store, adapter *transport.Adapter, db *store.DB, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(convs, adapter, db, b, logger)
}

func provideQueue(sender *outbox.Sender, logger *zap.Logger) *outbox.Queue {
	return outbox.NewQueue(sender, logger)
}

func provideOutbox(convs *conversation.Store, q *outbox.Queue, adapter *transport.Adapter, db *store.DB, b *bus.Bus, logger *zap.Logger) *outbox.Service {
	return outbox.NewService(convs, q, adapter, db, b, logger, adapter.SelfName())
}

func provideHandler(p Params, convs *conversation.Store, svc *outbox.Service, q *outbox.Queue, db *store.DB, machine *conn.Machine, b *bus.Bus, adapter *transport.Adapter, logger *zap.Logger) *api.Handler {
	return api.NewHandler(api.Deps{
		Profile:       p.ProfileName,
		Conversations: convs,
		Outbox:        svc,
		Queue:         q,
		Archive:       db,
		Machine:       machine,
		Bus:           b,
		Address:       adapter,
		Logger:        logger,
	})
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, adapter *transport.Adapter, ing *ingest.Engine, queue *outbox.Queue, convs *conversation.Store, db *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Restore archived history before any new traffic lands; stale
			// pending messages surface as failed, ready for retry.
			if err := ingest.Hydrate(convs, db, logger); err != nil {
				return err
			}

			// Ingest subscribes before the transport starts publishing.
			ing.Start()

			if err := adapter.Start(); err != nil {
				return err
			}

			// Serve the API socket in the background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("api server error", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			queue.Stop()
			ing.Stop()
			adapter.Stop()
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("engine stopped")
			return nil
		},
	})
}
