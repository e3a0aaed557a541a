package push

import (
	"context"
	"fmt"

	"github.com/coolftc/prompt/internal/bus"
	"github.com/coolftc/prompt/internal/store"
	"go.uber.org/zap"
)

// Refresher brings the cache up to date after a notification.
type Refresher interface {
	Trigger(force bool)
}

// Handler accepts push payloads delivered to the daemon.
type Handler struct {
	db        *store.DB
	bus       *bus.Bus
	refresher Refresher
	logger    *zap.Logger
}

func NewHandler(db *store.DB, b *bus.Bus, refresher Refresher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{db: db, bus: b, refresher: refresher, logger: logger.Named("push")}
}

// Handle decodes payload, records received notes and announces the result.
// Invitations and confirmations force a refresh: the relation already
// changed on the service.
func (h *Handler) Handle(ctx context.Context, payload map[string]string) (Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	owner, err := h.db.GetOwner()
	if err != nil {
		return nil, fmt.Errorf("load owner: %w", err)
	}
	if owner == nil {
		owner = &store.Account{}
	}

	n, err := Decode(payload, *owner)
	if err != nil {
		h.logger.Warn("dropping push payload", zap.Error(err))
		return nil, err
	}

	switch v := n.(type) {
	case Note:
		if err := h.record(v, owner); err != nil {
			h.logger.Warn("received prompt not stored", zap.Int64("server_id", v.ServerID), zap.Error(err))
		}
		h.bus.Emit(bus.KindPushNote, v)
		h.trigger(false)
	case Invite:
		h.bus.Emit(bus.KindPushInvite, v)
		h.trigger(true)
	case Friend:
		h.bus.Emit(bus.KindPushFriend, v)
		h.trigger(true)
	}
	h.logger.Info("push received", zap.String("kind", string(n.Kind())))
	return n, nil
}

// record keeps a copy of a delivered prompt so it can be listed and
// snoozed. A prompt already known by server id is left alone.
func (h *Handler) record(n Note, owner *store.Account) error {
	if n.ServerID == 0 {
		return nil
	}
	existing, err := h.db.GetPromptByServerID(n.ServerID)
	if err != nil || existing != nil {
		return err
	}

	p := &store.Prompt{
		TargetAcct:   owner.AcctID,
		TargetUnique: owner.Unique,
		TargetName:   owner.BestName(),
		FromAcct:     n.From.AcctID,
		FromUnique:   n.From.Unique,
		FromName:     n.From.BestName(),
		TargetTime:   n.Time,
		SleepCycle:   owner.SleepCycle,
		Timezone:     owner.Timezone,
		RecurUnit:    int(n.RecurUnit),
		Message:      n.Message,
	}
	if _, err := h.db.InsertPrompt(p); err != nil {
		return err
	}
	return h.db.MarkPromptSent(p.ID, n.Time, n.ServerID)
}

func (h *Handler) trigger(force bool) {
	if h.refresher != nil {
		h.refresher.Trigger(force)
	}
}
