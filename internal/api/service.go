package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coolftc/prompt/internal/calendar"
	"github.com/coolftc/prompt/internal/ktime"
	"github.com/coolftc/prompt/internal/outbox"
	"github.com/coolftc/prompt/internal/push"
	"github.com/coolftc/prompt/internal/remote"
	"github.com/coolftc/prompt/internal/status"
	"github.com/coolftc/prompt/internal/store"
	intsync "github.com/coolftc/prompt/internal/sync"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// DefaultOccurrences caps an Occurrences answer when the caller sets no max.
const DefaultOccurrences = 20

// Refresher runs reconciliation on demand.
type Refresher interface {
	Refresh(ctx context.Context, force bool) (intsync.Result, error)
	Trigger(force bool)
}

// Outbox performs prompt mutations.
type Outbox interface {
	Send(ctx context.Context, d outbox.Draft) (*store.Prompt, error)
	Cancel(ctx context.Context, localID int64) error
	Snooze(ctx context.Context, serverID int64) (*store.Prompt, error)
}

// Relations changes who the owner is connected to.
type Relations interface {
	Ping(ctx context.Context) (string, error)
	Invite(ctx context.Context, req remote.InviteRequest) error
	Unfriend(ctx context.Context, friendID int64) error
}

// PushHandler takes inbound push payloads.
type PushHandler interface {
	Handle(ctx context.Context, payload map[string]string) (push.Notification, error)
}

// Service implements ControlServer on top of the daemon's components.
type Service struct {
	profile   string
	startedAt time.Time
	machine   *status.Machine
	db        *store.DB
	refresher Refresher
	outbox    Outbox
	relations Relations
	push      PushHandler
	logger    *zap.Logger
	now       func() time.Time
}

var _ ControlServer = (*Service)(nil)

func NewService(profile string, machine *status.Machine, db *store.DB, refresher Refresher, ob Outbox, relations Relations, ph PushHandler, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		profile:   profile,
		startedAt: time.Now(),
		machine:   machine,
		db:        db,
		refresher: refresher,
		outbox:    ob,
		relations: relations,
		push:      ph,
		logger:    logger.Named("api"),
		now:       time.Now,
	}
}

func respond(fields map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "encode response: %v", err)
	}
	return s, nil
}

func (s *Service) Status(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	current := s.machine.Current()
	out := map[string]any{
		"profile":   s.profile,
		"state":     string(current),
		"since":     s.machine.Since().UTC().Format(time.RFC3339),
		"uptime_ms": time.Since(s.startedAt).Milliseconds(),
	}

	if owner, err := s.db.GetOwner(); err == nil && owner != nil {
		out["acct_id"] = owner.AcctID
		out["unique"] = owner.Unique
		out["name"] = owner.BestName()
		out["registered"] = owner.Registered()
	} else {
		out["registered"] = false
	}
	if n, err := s.db.FriendCount(); err == nil {
		out["friends"] = n
	}
	if v, err := s.db.GetCheckpoint(store.KeyPendingPrompts); err == nil && v != "" {
		out["pending"] = v
	}
	if v, err := s.db.GetCheckpoint(store.KeyFriendsLastSync); err == nil && v != "" {
		out["last_sync"] = v
	}
	if unsent, err := s.db.ListUnsent(); err == nil {
		out["unsent"] = len(unsent)
	}
	return respond(out)
}

func (s *Service) Ping(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	version, err := s.relations.Ping(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.String(version), nil
}

func (s *Service) Refresh(ctx context.Context, req *wrapperspb.BoolValue) (*structpb.Struct, error) {
	res, err := s.refresher.Refresh(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return respond(resultFields(res))
}

func (s *Service) ListFriends(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	friends, err := s.db.ListFriends()
	if err != nil {
		return nil, toStatus(err)
	}
	return respond(map[string]any{"friends": list(friends, friendFields)})
}

func (s *Service) SearchFriends(_ context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	friends, err := s.db.SearchFriends(req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return respond(map[string]any{"friends": list(friends, friendFields)})
}

// InviteFriend takes {unique, display, message, mirror}.
func (s *Service) InviteFriend(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	unique := strings.TrimSpace(str(req, "unique"))
	if unique == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "unique is required")
	}
	err := s.relations.Invite(ctx, remote.InviteRequest{
		Unique:  unique,
		Display: str(req, "display"),
		Message: str(req, "message"),
		Mirror:  req.GetFields()["mirror"].GetBoolValue(),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	s.refresher.Trigger(true)
	return &emptypb.Empty{}, nil
}

// RemoveFriend drops a friend or invitation by account id.
func (s *Service) RemoveFriend(ctx context.Context, req *wrapperspb.Int64Value) (*emptypb.Empty, error) {
	if req.GetValue() <= 0 {
		return nil, grpcstatus.Error(codes.InvalidArgument, "account id is required")
	}
	if err := s.relations.Unfriend(ctx, req.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	s.refresher.Trigger(true)
	return &emptypb.Empty{}, nil
}

func (s *Service) ListPrompts(_ context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	var (
		prompts []store.Prompt
		err     error
	)
	if term := strings.TrimSpace(req.GetValue()); term != "" {
		prompts, err = s.db.SearchPrompts(term)
	} else {
		prompts, err = s.db.ListPrompts(0)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	now := s.now()
	return respond(map[string]any{"prompts": list(prompts, func(p store.Prompt) map[string]any {
		return promptFields(p, now)
	})})
}

// SendPrompt answers with the stored prompt even when delivery failed; the
// failure is reported in "error" and the prompt's status.
func (s *Service) SendPrompt(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	d, err := draftFrom(req)
	if err != nil {
		return nil, toStatus(err)
	}
	p, err := s.outbox.Send(ctx, d)
	if p == nil {
		return nil, toStatus(err)
	}
	out := promptFields(*p, s.now())
	out["delivered"] = err == nil
	if err != nil {
		s.logger.Info("prompt stored, delivery pending", zap.Int64("prompt_id", p.ID), zap.Error(err))
		out["error"] = err.Error()
		out["retry"] = errors.Is(err, remote.ErrTransport)
	}
	return respond(out)
}

func (s *Service) CancelPrompt(ctx context.Context, req *wrapperspb.Int64Value) (*emptypb.Empty, error) {
	if err := s.outbox.Cancel(ctx, req.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Service) SnoozePrompt(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error) {
	p, err := s.outbox.Snooze(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return respond(promptFields(*p, s.now()))
}

// DeliverPush takes the flat payload a push provider would deliver.
func (s *Service) DeliverPush(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	payload := make(map[string]string, len(req.GetFields()))
	for k := range req.GetFields() {
		payload[k] = str(req, k)
	}
	n, err := s.push.Handle(ctx, payload)
	if err != nil {
		return nil, toStatus(err)
	}
	return respond(notificationFields(n))
}

func (s *Service) ExportCalendar(_ context.Context, _ *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	prompts, err := s.db.ListPrompts(0)
	if err != nil {
		return nil, toStatus(err)
	}
	data, err := calendar.Export(prompts, s.now(), s.logger)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(data), nil
}

// Occurrences takes {id, from, to, max} and lists delivery times of a
// stored prompt. from defaults to now and to to one year after from.
func (s *Service) Occurrences(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := s.db.GetPrompt(num(req, "id"))
	if err != nil {
		return nil, toStatus(err)
	}
	if p == nil {
		return nil, toStatus(fmt.Errorf("%w: %d", outbox.ErrNotFound, num(req, "id")))
	}

	now := s.now()
	start, err := ktime.Parse(p.TargetTime, ktime.Template3339fk, ktime.UTC)
	if err != nil {
		return nil, toStatus(err)
	}
	from, err := timeArg(str(req, "from"), now)
	if err != nil {
		return nil, toStatus(err)
	}
	to, err := timeArg(str(req, "to"), from.AddDate(1, 0, 0))
	if err != nil {
		return nil, toStatus(err)
	}
	limit := int(num(req, "max"))
	if limit <= 0 {
		limit = DefaultOccurrences
	}

	times, err := p.Rule().Occurrences(start, from, to, now, limit)
	if err != nil {
		return nil, toStatus(err)
	}
	out := make([]any, 0, len(times))
	for _, t := range times {
		v, err := ktime.Format(t, ktime.Template3339fk, ktime.UTC)
		if err != nil {
			return nil, toStatus(err)
		}
		out = append(out, v)
	}
	return respond(map[string]any{
		"id":         p.ID,
		"recurrence": p.Rule().Describe(now),
		"times":      out,
	})
}

func timeArg(text string, fallback time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return fallback, nil
	}
	for _, tpl := range []string{ktime.Template3339fk, ktime.Template3339} {
		if t, err := ktime.Parse(text, tpl, ktime.UTC); err == nil {
			return t, nil
		}
	}
	return ktime.Parse(text, ktime.TemplateDay, ktime.UTC)
}
