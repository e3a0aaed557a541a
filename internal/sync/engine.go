// Package sync keeps the local friend cache consistent with the service's
// relation directory.
package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coolftc/prompt/internal/bus"
	"github.com/coolftc/prompt/internal/contacts"
	"github.com/coolftc/prompt/internal/ktime"
	"github.com/coolftc/prompt/internal/remote"
	"github.com/coolftc/prompt/internal/status"
	"github.com/coolftc/prompt/internal/store"
	"go.uber.org/zap"
)

// DefaultDebounce is the minimum time between two unforced directory fetches.
const DefaultDebounce = 10 * time.Minute

// DefaultDiscoverEvery bounds how often the base camp document is read.
const DefaultDiscoverEvery = 24 * time.Hour

var (
	// ErrAnomaly means the directory answered with no friends at all. The
	// service always reports at least the owner, so the answer is not trusted.
	ErrAnomaly = errors.New("sync: directory returned no friends")
	// ErrNotRegistered means the profile has no ticket or account id yet.
	ErrNotRegistered = errors.New("sync: account not registered")
)

// Directory is the part of the service the engine reads.
type Directory interface {
	Friends(ctx context.Context) (*remote.Invitations, error)
	Discover(ctx context.Context, baseCampURL string) (string, error)
	SetBaseURL(u string)
}

// ContactLookup finds a device contact for a phone number or email.
type ContactLookup interface {
	Lookup(unique string) (contacts.Contact, bool)
}

// Config tunes the engine.
type Config struct {
	Debounce time.Duration
	// DirectoryURL is the base camp document. Empty disables discovery.
	DirectoryURL  string
	DiscoverEvery time.Duration
}

// State is what a cycle needs to remember between runs.
type State struct {
	LastSync time.Time
}

// Result summarizes one cycle.
type Result struct {
	Debounced bool
	Deleted   int
	Updated   int
	Added     int
	Enriched  int
	Skipped   int
	Failed    int
	Pending   int
	Elapsed   time.Duration
}

// Changed reports whether the cycle wrote to the friend table.
func (r Result) Changed() bool {
	return r.Deleted+r.Updated+r.Added+r.Enriched > 0
}

// Engine runs reconciliation cycles. Refresh serializes cycles; Trigger
// coalesces requests into one running cycle plus at most one queued.
type Engine struct {
	db      *store.DB
	dir     Directory
	book    ContactLookup
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
	cfg     Config
	now     func() time.Time

	mu sync.Mutex

	qmu    sync.Mutex
	queued bool
	force  bool
	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates an engine. book, b and machine may be nil.
func NewEngine(db *store.DB, dir Directory, book ContactLookup, b *bus.Bus, machine *status.Machine, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.DiscoverEvery <= 0 {
		cfg.DiscoverEvery = DefaultDiscoverEvery
	}
	return &Engine{
		db:      db,
		dir:     dir,
		book:    book,
		bus:     b,
		machine: machine,
		logger:  logger.Named("sync"),
		cfg:     cfg,
		now:     time.Now,
		wake:    make(chan struct{}, 1),
	}
}

// Cycle runs one reconciliation against st and returns the state to keep.
// The returned state differs from st only when the cycle fully succeeded.
func (e *Engine) Cycle(ctx context.Context, st State, force bool) (Result, State, error) {
	start := e.now()
	var res Result

	if !force && !st.LastSync.IsZero() && start.Sub(st.LastSync) < e.cfg.Debounce {
		e.logger.Debug("refresh debounced",
			zap.Time("last_sync", st.LastSync),
			zap.Duration("debounce", e.cfg.Debounce),
		)
		res.Debounced = true
		res.Pending = e.countPending()
		return res, st, nil
	}

	in, err := e.dir.Friends(ctx)
	if err != nil {
		e.logger.Warn("directory fetch failed", zap.Error(err))
		return res, st, fmt.Errorf("fetch directory: %w", err)
	}
	if in == nil || len(in.Friends) == 0 {
		rsvps, invites := 0, 0
		if in != nil {
			rsvps, invites = len(in.RSVPs), len(in.Invites)
		}
		e.logger.Warn("directory anomaly, cache left unchanged",
			zap.Int("rsvps", rsvps),
			zap.Int("invites", invites),
		)
		return res, st, ErrAnomaly
	}

	local, err := e.db.ListFriends()
	if err != nil {
		return res, st, fmt.Errorf("list friends: %w", err)
	}

	plan := Diff(in, local)
	e.apply(plan, &res)
	e.enrich(&res)
	e.syncOwnerContact()
	res.Pending = e.countPending()

	res.Elapsed = e.now().Sub(start)
	e.logger.Info("refresh complete",
		zap.Int("deleted", res.Deleted),
		zap.Int("updated", res.Updated),
		zap.Int("added", res.Added),
		zap.Int("enriched", res.Enriched),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
		zap.Int("pending", res.Pending),
		zap.Duration("elapsed", res.Elapsed),
	)
	if res.Changed() {
		e.bus.Emit(bus.KindFriendsChanged, res)
	}
	return res, State{LastSync: start}, nil
}

func (e *Engine) apply(plan Plan, res *Result) {
	for _, f := range plan.Skipped {
		e.logger.Warn("skipping directory entry without id",
			zap.String("unique", f.Unique),
			zap.String("display", f.Display),
		)
		res.Skipped++
	}
	for _, a := range plan.Deletes {
		if err := e.db.DeleteFriend(a.LocalID); err != nil {
			e.logger.Warn("delete friend failed", zap.Int64("acct_id", a.AcctID), zap.Error(err))
			res.Failed++
			continue
		}
		e.logger.Debug("friend removed", zap.Int64("acct_id", a.AcctID))
		res.Deleted++
	}
	for i := range plan.Updates {
		a := &plan.Updates[i]
		if err := e.db.UpdateFriend(a); err != nil {
			e.logger.Warn("update friend failed", zap.Int64("acct_id", a.AcctID), zap.Error(err))
			res.Failed++
			continue
		}
		res.Updated++
	}
	for i := range plan.Adds {
		a := &plan.Adds[i]
		if _, err := e.db.InsertFriend(a); err != nil {
			e.logger.Warn("add friend failed", zap.Int64("acct_id", a.AcctID), zap.Error(err))
			res.Failed++
			continue
		}
		res.Added++
	}
}

// enrich links cached accounts to device contacts. Misses and errors are
// per record.
func (e *Engine) enrich(res *Result) {
	if e.book == nil {
		return
	}
	friends, err := e.db.ListFriends()
	if err != nil {
		e.logger.Warn("contact enrichment skipped", zap.Error(err))
		return
	}
	for _, a := range friends {
		if a.ContactID != "" {
			continue
		}
		c, ok := e.book.Lookup(a.Unique)
		if !ok || c.Name == "" {
			continue
		}
		if err := e.db.UpdateFriendContact(a.LocalID, c.ID, c.Name, c.Picture); err != nil {
			e.logger.Warn("contact link failed", zap.Int64("acct_id", a.AcctID), zap.Error(err))
			continue
		}
		res.Enriched++
	}
}

// syncOwnerContact copies the contact name and picture of the owner's own
// friend row onto the owner record.
func (e *Engine) syncOwnerContact() {
	owner, err := e.db.GetOwner()
	if err != nil || owner == nil {
		return
	}
	self, err := e.db.GetFriendByAcct(owner.AcctID)
	if err != nil || self == nil {
		return
	}
	if strings.EqualFold(owner.ContactName, self.ContactName) && strings.EqualFold(owner.ContactPic, self.ContactPic) {
		return
	}
	if err := e.db.UpdateOwnerContact(self.ContactName, self.ContactPic); err != nil {
		e.logger.Warn("owner contact update failed", zap.Error(err))
	}
}

func (e *Engine) countPending() int {
	now, err := ktime.Format(e.now(), ktime.Template3339fk, ktime.UTC)
	if err != nil {
		return 0
	}
	n, err := e.db.CountPendingSince(now)
	if err != nil {
		e.logger.Warn("pending count failed", zap.Error(err))
		return 0
	}
	if err := e.db.SetCheckpoint(store.KeyPendingPrompts, strconv.Itoa(n)); err != nil {
		e.logger.Warn("pending count not saved", zap.Error(err))
	}
	return n
}

// Refresh runs one cycle with the persisted state. Concurrent calls wait
// for each other.
func (e *Engine) Refresh(ctx context.Context, force bool) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	owner, err := e.db.GetOwner()
	if err != nil {
		return Result{}, fmt.Errorf("load owner: %w", err)
	}
	if !owner.Registered() {
		e.enter(status.Unregistered)
		return Result{}, ErrNotRegistered
	}
	if e.machine != nil && e.machine.Current() == status.Unregistered {
		e.enter(status.Idle)
	}
	e.enter(status.Refreshing)

	e.discover(ctx)

	st := e.loadState()
	res, next, err := e.Cycle(ctx, st, force)
	if err != nil {
		e.enter(status.Degraded)
		e.bus.Emit(bus.KindRefreshFailed, err.Error())
		return res, err
	}
	if next != st {
		e.saveState(next)
	}
	e.enter(status.Idle)
	e.bus.Emit(bus.KindRefreshCompleted, res)
	return res, nil
}

func (e *Engine) loadState() State {
	v, err := e.db.GetCheckpoint(store.KeyFriendsLastSync)
	if err != nil || v == "" {
		return State{}
	}
	t, err := ktime.Parse(v, ktime.Template3339fk, ktime.UTC)
	if err != nil {
		e.logger.Warn("ignoring bad sync checkpoint", zap.String("value", v), zap.Error(err))
		return State{}
	}
	return State{LastSync: t}
}

func (e *Engine) saveState(st State) {
	v, err := ktime.Format(st.LastSync, ktime.Template3339fk, ktime.UTC)
	if err == nil {
		err = e.db.SetCheckpoint(store.KeyFriendsLastSync, v)
	}
	if err != nil {
		e.logger.Warn("sync checkpoint not saved", zap.Error(err))
	}
}

// RestoreBaseURL points the directory at the last discovered host, if any.
func (e *Engine) RestoreBaseURL() {
	if e.cfg.DirectoryURL == "" {
		return
	}
	host, err := e.db.GetCheckpoint(store.KeyBaseURL)
	if err != nil || host == "" {
		return
	}
	e.dir.SetBaseURL(host)
	e.logger.Info("using discovered base url", zap.String("base_url", host))
}

// discover re-reads the base camp document when the last check is older
// than DiscoverEvery. Failures keep the current host.
func (e *Engine) discover(ctx context.Context) {
	if e.cfg.DirectoryURL == "" {
		return
	}
	now := e.now()
	if v, _ := e.db.GetCheckpoint(store.KeyBaseURLChecked); v != "" {
		if last, err := ktime.Parse(v, ktime.Template3339fk, ktime.UTC); err == nil && now.Sub(last) < e.cfg.DiscoverEvery {
			return
		}
	}

	host, err := e.dir.Discover(ctx, e.cfg.DirectoryURL)
	if err != nil {
		e.logger.Warn("base url discovery failed", zap.Error(err))
		return
	}
	e.dir.SetBaseURL(host)
	checked, _ := ktime.Format(now, ktime.Template3339fk, ktime.UTC)
	if err := e.db.SetCheckpoint(store.KeyBaseURL, host); err != nil {
		e.logger.Warn("base url not saved", zap.Error(err))
	}
	if err := e.db.SetCheckpoint(store.KeyBaseURLChecked, checked); err != nil {
		e.logger.Warn("base url check time not saved", zap.Error(err))
	}
	e.logger.Info("base url discovered", zap.String("base_url", host))
}

func (e *Engine) enter(s status.State) {
	if e.machine == nil {
		return
	}
	if err := e.machine.Transition(s); err != nil {
		e.logger.Debug("state not changed", zap.Error(err))
	}
}

// Trigger requests a refresh from the worker. A request made while a cycle
// runs is queued once; further requests merge into it. force is sticky
// until the queued cycle starts.
func (e *Engine) Trigger(force bool) {
	e.qmu.Lock()
	e.force = e.force || force
	e.queued = true
	e.qmu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Start runs the trigger worker until ctx ends or Stop is called.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	go e.loop(ctx)
}

// Stop ends the worker and waits for a running cycle to finish.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.wake:
			e.qmu.Lock()
			if !e.queued {
				e.qmu.Unlock()
				continue
			}
			force := e.force
			e.queued, e.force = false, false
			e.qmu.Unlock()

			if _, err := e.Refresh(ctx, force); err != nil && !errors.Is(err, ErrNotRegistered) {
				e.logger.Warn("triggered refresh failed", zap.Bool("force", force), zap.Error(err))
			}
		}
	}
}
