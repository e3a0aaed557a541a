package daemon

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/coolftc/prompt/internal/api"
	"github.com/coolftc/prompt/internal/bus"
	"github.com/coolftc/prompt/internal/config"
	"github.com/coolftc/prompt/internal/contacts"
	"github.com/coolftc/prompt/internal/lock"
	"github.com/coolftc/prompt/internal/logging"
	"github.com/coolftc/prompt/internal/outbox"
	"github.com/coolftc/prompt/internal/profile"
	"github.com/coolftc/prompt/internal/push"
	"github.com/coolftc/prompt/internal/remote"
	"github.com/coolftc/prompt/internal/status"
	"github.com/coolftc/prompt/internal/store"
	intsync "github.com/coolftc/prompt/internal/sync"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Params holds the resolved profile passed to the fx module.
type Params struct {
	Profile string
	// Dir overrides the profile directory; empty uses profile.Dir.
	Dir string
	// SocketPath overrides the control socket; empty uses Dir/promptd.sock.
	SocketPath string
	LogLevel   zapcore.Level
}

func (p Params) dir() string {
	if p.Dir != "" {
		return p.Dir
	}
	return profile.Dir(p.Profile)
}

func (p Params) socketPath() string {
	if p.SocketPath != "" {
		return p.SocketPath
	}
	return filepath.Join(p.dir(), filepath.Base(profile.SocketPath(p.Profile)))
}

func (p Params) configPath() string {
	return filepath.Join(p.dir(), filepath.Base(profile.ConfigPath(p.Profile)))
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideRemote,
			provideContacts,
			provideEngine,
			provideSender,
			providePush,
			provideService,
			provideScheduler,
			NewJournal,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Profile, error) {
	return config.LoadProfile(p.configPath())
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(filepath.Join(p.dir(), "logs", "promptd.log"), p.Profile, p.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(p.dir())
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired", zap.String("path", l.Path()))
	return l, nil
}

// provideStore takes the lock so the database is never opened by a
// second daemon.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := filepath.Join(p.dir(), filepath.Base(profile.DBPath(p.Profile)))
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
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideRemote(cfg *config.Profile, logger *zap.Logger) *remote.Client {
	return remote.New(remote.Config{
		BaseURL: cfg.Service.BaseURL,
		Ticket:  cfg.Account.Ticket,
		AcctID:  cfg.Account.AcctID,
		Timeout: cfg.Service.Timeout.Duration,
		Retries: cfg.Service.Retries,
	}, logger)
}

func provideContacts(cfg *config.Profile, logger *zap.Logger) (*contacts.Book, error) {
	book, err := contacts.Load(cfg.Sync.Contacts, logger)
	if err != nil {
		return nil, fmt.Errorf("load contacts: %w", err)
	}
	return book, nil
}

// directoryURL is where the service host is looked up. An explicit base
// url turns discovery off unless a directory is configured as well.
func directoryURL(cfg *config.Profile) string {
	if cfg.Service.DirectoryURL != "" {
		return cfg.Service.DirectoryURL
	}
	if cfg.Service.BaseURL != "" {
		return ""
	}
	return remote.DefaultBaseCampURL
}

func provideEngine(db *store.DB, rc *remote.Client, book *contacts.Book, b *bus.Bus, m *status.Machine, cfg *config.Profile, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, rc, book, b, m, intsync.Config{
		Debounce:     cfg.Sync.Debounce.Duration,
		DirectoryURL: directoryURL(cfg),
	}, logger)
}

func provideSender(db *store.DB, rc *remote.Client, engine *intsync.Engine, b *bus.Bus, cfg *config.Profile, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, rc, engine, b, outbox.Config{
		Snooze:        cfg.Prompt.SnoozeDuration(),
		RetryInterval: cfg.Prompt.RetryInterval.Duration,
	}, logger)
}

func providePush(db *store.DB, b *bus.Bus, engine *intsync.Engine, logger *zap.Logger) *push.Handler {
	return push.NewHandler(db, b, engine, logger)
}

func provideService(p Params, m *status.Machine, db *store.DB, engine *intsync.Engine, sender *outbox.Sender, rc *remote.Client, ph *push.Handler, logger *zap.Logger) *api.Service {
	return api.NewService(p.Profile, m, db, engine, sender, rc, ph, logger)
}

func registerLifecycle(
	lc fx.Lifecycle,
	p Params,
	cfg *config.Profile,
	srv *Server,
	lk *lock.Lock,
	db *store.DB,
	engine *intsync.Engine,
	sender *outbox.Sender,
	sched *Scheduler,
	journal *Journal,
	machine *status.Machine,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			journal.Start()
			registered, err := seedOwner(db, cfg, p.configPath(), logger)
			if err != nil {
				_ = machine.Transition(status.Error)
				return err
			}
			engine.RestoreBaseURL()

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if !registered {
				logger.Info("no account ticket configured, running unregistered")
				_ = machine.Transition(status.Unregistered)
				return nil
			}
			_ = machine.Transition(status.Idle)

			engine.Start(context.Background())
			sender.Start(context.Background())
			if err := sched.Start(); err != nil {
				return err
			}
			engine.Trigger(false)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			_ = machine.Transition(status.Stopping)
			sched.Stop()
			sender.Stop()
			engine.Stop()
			srv.Stop(ctx)
			journal.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}

// seedOwner copies the configured account into the owner record. A solo
// profile without a device id gets one, written back to the config file.
func seedOwner(db *store.DB, cfg *config.Profile, path string, logger *zap.Logger) (bool, error) {
	acct := cfg.Account
	if acct.Unique == "" && !acct.Registered() {
		return false, nil
	}
	if acct.Device == "" {
		cfg.Account.Device = uuid.NewString()
		acct.Device = cfg.Account.Device
		if err := config.Save(path, cfg); err != nil {
			logger.Warn("device id not saved", zap.Error(err))
		}
	}
	err := db.SaveOwner(&store.Account{
		AcctID:     acct.AcctID,
		Ticket:     acct.Ticket,
		Unique:     acct.Unique,
		Display:    acct.Display,
		Timezone:   acct.Timezone,
		SleepCycle: acct.SleepCycle,
		Device:     acct.Device,
	})
	if err != nil {
		return false, fmt.Errorf("seed owner: %w", err)
	}
	logger.Info("owner loaded", zap.String("unique", acct.Unique), zap.Bool("registered", acct.Registered()))
	return acct.Registered(), nil
}
