package daemon

import (
	"fmt"

	"github.com/coolftc/prompt/internal/config"
	intsync "github.com/coolftc/prompt/internal/sync"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler pokes the sync engine on the configured cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	spec   string
	engine *intsync.Engine
	logger *zap.Logger
}

func provideScheduler(cfg *config.Profile, engine *intsync.Engine, logger *zap.Logger) (*Scheduler, error) {
	return NewScheduler(cfg.Sync.Schedule, engine, logger)
}

// NewScheduler validates spec up front so a bad schedule fails startup.
func NewScheduler(spec string, engine *intsync.Engine, logger *zap.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("sync schedule %q: %w", spec, err)
	}
	logger = logger.Named("schedule")
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cronLogger{logger})),
		spec:   spec,
		engine: engine,
		logger: logger,
	}, nil
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.engine.Trigger(false) }); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("refresh schedule started", zap.String("spec", s.spec))
	return nil
}

// Stop waits for a running job to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// cronLogger routes cron's logr-style output into zap.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
