// Package outbox sends, cancels and snoozes prompts against the service and
// mirrors each outcome onto the local cache.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coolftc/prompt/internal/bus"
	"github.com/coolftc/prompt/internal/ktime"
	"github.com/coolftc/prompt/internal/recur"
	"github.com/coolftc/prompt/internal/remote"
	"github.com/coolftc/prompt/internal/store"
	"go.uber.org/zap"
)

// Defaults for Config.
const (
	DefaultSnooze        = 10 * time.Minute
	DefaultRetryInterval = time.Minute
)

var (
	ErrNotRegistered = errors.New("outbox: account not registered")
	ErrUnknownTarget = errors.New("outbox: target is not a friend")
	ErrEmptyMessage  = errors.New("outbox: message is empty")
	ErrNotFound      = errors.New("outbox: prompt not found")
)

// PromptService is the part of the service the sender writes to.
type PromptService interface {
	CreatePrompt(ctx context.Context, req remote.PromptRequest) (*remote.PromptResponse, error)
	SnoozePrompt(ctx context.Context, req remote.SnoozeRequest) (*remote.PromptResponse, error)
	DeletePrompt(ctx context.Context, noteID int64) error
}

// Refresher is poked after every accepted mutation so the pending count
// and friend cache catch up.
type Refresher interface {
	Trigger(force bool)
}

// Config tunes the sender.
type Config struct {
	Snooze        time.Duration
	RetryInterval time.Duration
}

// Draft is a prompt as requested by the user.
type Draft struct {
	// TargetAcct is the receiving friend's account id; 0 means the owner.
	TargetAcct int64
	// When is the exact delivery time in one of the 3339 templates. Empty
	// means now, leaving the simplified time fields to the service.
	When       string
	TimeName   int
	TimeAdj    int
	Recurrence *recur.Draft
	Message    string
}

// Sender performs prompt mutations one at a time.
type Sender struct {
	db        *store.DB
	api       PromptService
	refresher Refresher
	bus       *bus.Bus
	logger    *zap.Logger
	cfg       Config
	now       func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSender creates a sender. refresher and b may be nil.
func NewSender(db *store.DB, api PromptService, refresher Refresher, b *bus.Bus, cfg Config, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Snooze <= 0 {
		cfg.Snooze = DefaultSnooze
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	return &Sender{
		db:        db,
		api:       api,
		refresher: refresher,
		bus:       b,
		logger:    logger.Named("outbox"),
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *Sender) owner() (*store.Account, error) {
	owner, err := s.db.GetOwner()
	if err != nil {
		return nil, fmt.Errorf("load owner: %w", err)
	}
	if !owner.Registered() {
		return nil, ErrNotRegistered
	}
	return owner, nil
}

// Send records the prompt locally and then creates it on the service. The
// stored prompt is returned even when delivery fails; its Status holds the
// outcome. A network failure leaves it unprocessed for the retry loop.
func (s *Sender) Send(ctx context.Context, d Draft) (*store.Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, err := s.owner()
	if err != nil {
		return nil, err
	}
	msg := strings.TrimSpace(d.Message)
	if msg == "" {
		return nil, ErrEmptyMessage
	}

	target := owner
	if d.TargetAcct != 0 && d.TargetAcct != owner.AcctID {
		target, err = s.db.GetFriendByAcct(d.TargetAcct)
		if err != nil {
			return nil, fmt.Errorf("load target: %w", err)
		}
		if target == nil {
			return nil, fmt.Errorf("%w: %d", ErrUnknownTarget, d.TargetAcct)
		}
	}

	now := s.now()
	rule := recur.None
	if d.Recurrence != nil {
		if rule, err = recur.Validate(*d.Recurrence, now); err != nil {
			return nil, err
		}
	}

	when, err := normalizeTime(d.When, now)
	if err != nil {
		return nil, err
	}

	p := &store.Prompt{
		TargetAcct:   target.AcctID,
		TargetUnique: target.Unique,
		TargetName:   target.BestName(),
		FromAcct:     owner.AcctID,
		FromUnique:   owner.Unique,
		FromName:     owner.BestName(),
		TargetTime:   when,
		TimeName:     d.TimeName,
		TimeAdj:      d.TimeAdj,
		SleepCycle:   target.SleepCycle,
		Timezone:     target.Timezone,
		Message:      msg,
	}
	if p.SleepCycle == 0 {
		p.SleepCycle = store.DefaultSleepCycle
	}
	if p.Timezone == "" {
		p.Timezone = ktime.UTC
	}
	p.SetRule(rule)

	if _, err := s.db.InsertPrompt(p); err != nil {
		return nil, err
	}
	err = s.deliver(ctx, p)
	if got, gerr := s.db.GetPrompt(p.ID); gerr == nil && got != nil {
		p = got
	}
	return p, err
}

// deliver creates p on the service and records the outcome. Callers hold s.mu.
func (s *Sender) deliver(ctx context.Context, p *store.Prompt) error {
	req := remote.PromptRequest{
		When:       p.TargetTime,
		Timezone:   p.Timezone,
		TimeName:   p.TimeName,
		TimeAdj:    p.TimeAdj,
		SleepCycle: p.SleepCycle,
		ReceiveID:  p.TargetAcct,
		Units:      p.RecurUnit,
		Period:     p.RecurPeriod,
		End:        p.RecurEnd,
		Recurs:     p.RecurNumber,
		Message:    p.Message,
	}

	resp, err := s.api.CreatePrompt(ctx, req)
	if err != nil {
		code := remote.Code(err)
		retry := errors.Is(err, remote.ErrTransport)
		if merr := s.db.MarkPromptStatus(p.ID, code, !retry); merr != nil {
			s.logger.Error("failed to record send failure", zap.Int64("prompt_id", p.ID), zap.Error(merr))
		}
		s.logger.Warn("prompt not sent",
			zap.Int64("prompt_id", p.ID),
			zap.Int("status", code),
			zap.Bool("retry", retry),
			zap.Error(err),
		)
		s.bus.Emit(bus.KindPromptFailed, PromptEvent{LocalID: p.ID, Status: code})
		return fmt.Errorf("send prompt: %w", err)
	}

	when := normalizeServerTime(resp.NoteTime, p.TargetTime)
	if err := s.db.MarkPromptSent(p.ID, when, resp.NoteID); err != nil {
		return fmt.Errorf("record sent prompt: %w", err)
	}
	s.logger.Info("prompt sent",
		zap.Int64("prompt_id", p.ID),
		zap.Int64("server_id", resp.NoteID),
		zap.String("target_time", when),
	)
	s.bus.Emit(bus.KindPromptSent, PromptEvent{LocalID: p.ID, ServerID: resp.NoteID, TargetTime: when})
	s.poke()
	return nil
}

// Cancel removes a prompt. Recurring and past prompts are removed locally
// whatever the service answers. Otherwise the local record goes only once
// the service confirms, and a failure is kept in its Status.
func (s *Sender) Cancel(ctx context.Context, localID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.db.GetPrompt(localID)
	if err != nil {
		return fmt.Errorf("load prompt: %w", err)
	}
	if p == nil {
		return fmt.Errorf("%w: %d", ErrNotFound, localID)
	}

	log := s.logger.With(zap.Int64("prompt_id", p.ID), zap.Int64("server_id", p.ServerID))

	switch {
	case p.ServerID == 0:
		log.Debug("prompt never reached the service")
	case p.Recurs():
		if _, err := s.owner(); err != nil {
			log.Warn("recurring prompt removed locally only", zap.Error(err))
			break
		}
		for _, id := range []int64{p.ServerID, p.SnoozeID} {
			if id == 0 {
				continue
			}
			if err := s.api.DeletePrompt(ctx, id); err != nil {
				log.Warn("service cancel failed, removing locally", zap.Int64("note_id", id), zap.Error(err))
			}
		}
	case s.isPast(p):
		log.Debug("prompt already delivered")
	default:
		if _, err := s.owner(); err != nil {
			return err
		}
		id := p.ServerID
		if p.SnoozeID > 0 {
			id = p.SnoozeID
		}
		if err := s.api.DeletePrompt(ctx, id); err != nil {
			code := remote.Code(err)
			if merr := s.db.MarkPromptFailed(p.ID, code); merr != nil {
				log.Error("failed to record cancel failure", zap.Error(merr))
			}
			log.Warn("prompt not canceled", zap.Int("status", code), zap.Error(err))
			s.bus.Emit(bus.KindPromptFailed, PromptEvent{LocalID: p.ID, ServerID: p.ServerID, Status: code})
			return fmt.Errorf("cancel prompt: %w", err)
		}
	}

	if err := s.db.DeletePrompt(p.ID); err != nil {
		return fmt.Errorf("delete prompt: %w", err)
	}
	log.Info("prompt canceled")
	s.bus.Emit(bus.KindPromptCanceled, PromptEvent{LocalID: p.ID, ServerID: p.ServerID})
	s.poke()
	return nil
}

func (s *Sender) isPast(p *store.Prompt) bool {
	past, err := ktime.IsPastAt(p.TargetTime, ktime.Template3339fk, s.now())
	if err != nil {
		s.logger.Debug("unreadable target time", zap.String("target_time", p.TargetTime), zap.Error(err))
		return false
	}
	return past
}

// Snooze asks the service to deliver a received prompt again after the
// snooze interval, measured from now.
func (s *Sender) Snooze(ctx context.Context, serverID int64) (*store.Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.owner(); err != nil {
		return nil, err
	}
	p, err := s.db.GetPromptByServerID(serverID)
	if err != nil {
		return nil, fmt.Errorf("load prompt: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: server id %d", ErrNotFound, serverID)
	}

	when, err := ktime.Format(s.now().Add(s.cfg.Snooze), ktime.Template3339, p.Timezone)
	if err != nil {
		return nil, err
	}
	resp, err := s.api.SnoozePrompt(ctx, remote.SnoozeRequest{
		When:     when,
		Timezone: p.Timezone,
		SnoozeID: p.ServerID,
		SenderID: p.FromAcct,
		Message:  p.Message,
	})
	if err != nil {
		s.logger.Warn("prompt not snoozed", zap.Int64("server_id", serverID), zap.Error(err))
		return nil, fmt.Errorf("snooze prompt: %w", err)
	}

	next := normalizeServerTime(resp.NoteTime, when)
	if err := s.db.UpdateSnooze(p.ServerID, next, resp.NoteID); err != nil {
		return nil, err
	}
	s.logger.Info("prompt snoozed",
		zap.Int64("server_id", serverID),
		zap.Int64("snooze_id", resp.NoteID),
		zap.String("target_time", next),
	)
	s.bus.Emit(bus.KindPromptSnoozed, PromptEvent{LocalID: p.ID, ServerID: p.ServerID, TargetTime: next})
	s.poke()
	return s.db.GetPrompt(p.ID)
}

func (s *Sender) poke() {
	if s.refresher != nil {
		s.refresher.Trigger(false)
	}
}

// Start retries unprocessed prompts every RetryInterval until ctx ends or
// Stop is called.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop ends the retry loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Sender) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RetryUnsent(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RetryUnsent makes one more attempt at every prompt the service has not
// accepted. It returns how many went through.
func (s *Sender) RetryUnsent(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	unsent, err := s.db.ListUnsent()
	if err != nil {
		s.logger.Error("failed to read unsent prompts", zap.Error(err))
		return 0
	}
	if len(unsent) == 0 {
		return 0
	}
	if _, err := s.owner(); err != nil {
		return 0
	}

	sent := 0
	for i := range unsent {
		if ctx.Err() != nil {
			break
		}
		err := s.deliver(ctx, &unsent[i])
		if err == nil {
			sent++
			continue
		}
		if errors.Is(err, remote.ErrTransport) {
			// Still offline; the rest would fail the same way.
			break
		}
	}
	return sent
}

// PromptEvent is the payload of the prompt.* bus events.
type PromptEvent struct {
	LocalID    int64
	ServerID   int64
	TargetTime string
	Status     int
}

// userTemplates are the forms accepted for a requested delivery time.
var userTemplates = []string{ktime.Template3339fk, ktime.Template3339, ktime.TemplateAlert}

// normalizeTime turns a requested time into the stored UTC form.
func normalizeTime(text string, now time.Time) (string, error) {
	if strings.TrimSpace(text) == "" {
		return ktime.Format(now, ktime.Template3339fk, ktime.UTC)
	}
	var firstErr error
	for _, tpl := range userTemplates {
		out, err := ktime.Convert(strings.TrimSpace(text), tpl, ktime.Template3339fk, ktime.UTC)
		if err == nil {
			return out, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return "", firstErr
}

// normalizeServerTime stores the service's time in UTC. An unreadable
// value falls back to the requested time.
func normalizeServerTime(text, fallback string) string {
	for _, tpl := range []string{ktime.Template3339fk, ktime.Template3339} {
		if out, err := ktime.Convert(text, tpl, ktime.Template3339fk, ktime.UTC); err == nil {
			return out
		}
	}
	if fallback != "" {
		if out, err := ktime.Convert(fallback, ktime.Template3339, ktime.Template3339fk, ktime.UTC); err == nil {
			return out
		}
	}
	return fallback
}
