package outbox

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/coolftc/prompt/internal/bus"
	"github.com/coolftc/prompt/internal/ktime"
	"github.com/coolftc/prompt/internal/recur"
	"github.com/coolftc/prompt/internal/remote"
	"github.com/coolftc/prompt/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) CreatePrompt(ctx context.Context, req remote.PromptRequest) (*remote.PromptResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*remote.PromptResponse)
	return resp, args.Error(1)
}

func (m *mockService) SnoozePrompt(ctx context.Context, req remote.SnoozeRequest) (*remote.PromptResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*remote.PromptResponse)
	return resp, args.Error(1)
}

func (m *mockService) DeletePrompt(ctx context.Context, noteID int64) error {
	return m.Called(ctx, noteID).Error(0)
}

type countingRefresher struct {
	mu    gosync.Mutex
	calls int
}

func (r *countingRefresher) Trigger(bool) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
}

func (r *countingRefresher) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

var (
	clock      = time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC)
	offline    = fmt.Errorf("%w: dial tcp: connection refused", remote.ErrTransport)
	rejected   = &remote.StatusError{Code: http.StatusBadRequest, Message: "bad"}
	gone       = &remote.StatusError{Code: http.StatusNotFound}
	background = context.Background()
)

type fixture struct {
	db   *store.DB
	api  *mockService
	ref  *countingRefresher
	bus  *bus.Bus
	send *Sender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.SaveOwner(&store.Account{AcctID: 1, Ticket: "tkt", Unique: "me@example.com", Display: "Me", Timezone: "UTC"}))
	_, err = db.InsertFriend(&store.Account{AcctID: 7, Unique: "ann@example.com", Display: "Ann", Timezone: "America/New_York", SleepCycle: 3, Confirmed: true})
	require.NoError(t, err)

	f := &fixture{db: db, api: &mockService{}, ref: &countingRefresher{}, bus: bus.New()}
	f.send = NewSender(db, f.api, f.ref, f.bus, Config{Snooze: 15 * time.Minute}, nil)
	f.send.now = func() time.Time { return clock }
	t.Cleanup(func() { f.api.AssertExpectations(t) })
	return f
}

// sentPrompt stores a prompt the service already accepted.
func (f *fixture) sentPrompt(t *testing.T, targetTime string, serverID, snoozeID int64, rule recur.Rule) *store.Prompt {
	t.Helper()
	p := &store.Prompt{TargetAcct: 7, FromAcct: 1, TargetTime: targetTime, Timezone: "America/New_York", Message: "m"}
	p.SetRule(rule)
	_, err := f.db.InsertPrompt(p)
	require.NoError(t, err)
	require.NoError(t, f.db.MarkPromptSent(p.ID, targetTime, serverID))
	if snoozeID > 0 {
		require.NoError(t, f.db.UpdateSnooze(serverID, targetTime, snoozeID))
	}
	return p
}

func TestSendSuccess(t *testing.T) {
	f := newFixture(t)
	ch, unsub := f.bus.Subscribe("prompt.", 4)
	defer unsub()

	f.api.On("CreatePrompt", mock.Anything, mock.MatchedBy(func(req remote.PromptRequest) bool {
		return req.ReceiveID == 7 && req.Timezone == "America/New_York" && req.SleepCycle == 3 &&
			req.When == "2030-01-02T14:00:00.000Z" && req.Units == int(recur.UnitDay) &&
			req.Period == 2 && req.Recurs == 3 && req.Message == "water the plants"
	})).Return(&remote.PromptResponse{NoteID: 500, NoteTime: "2030-01-02T09:00:00-05:00"}, nil).Once()

	p, err := f.send.Send(background, Draft{
		TargetAcct: 7,
		When:       "2030-01-02T14:00:00Z",
		Recurrence: &recur.Draft{Unit: recur.UnitDay, Period: "2", End: recur.EndAfter, Count: "3"},
		Message:    "  water the plants ",
	})
	require.NoError(t, err)
	assert.True(t, p.Processed)
	assert.Equal(t, int64(500), p.ServerID)
	assert.Equal(t, "2030-01-02T14:00:00.000Z", p.TargetTime)
	assert.Equal(t, "Ann", p.TargetName)
	assert.Equal(t, "Me", p.FromName)
	assert.Equal(t, 1, f.ref.Calls())

	evt := <-ch
	assert.Equal(t, bus.KindPromptSent, evt.Kind)
	assert.Equal(t, int64(500), evt.Payload.(PromptEvent).ServerID)
}

func TestSendToSelfDefaultsToNow(t *testing.T) {
	f := newFixture(t)
	f.api.On("CreatePrompt", mock.Anything, mock.MatchedBy(func(req remote.PromptRequest) bool {
		return req.ReceiveID == 1 && req.When == "2030-01-01T09:00:00.000Z" && req.Units == int(recur.Invalid) && req.TimeName == 2
	})).Return(&remote.PromptResponse{NoteID: 1, NoteTime: "garbage"}, nil).Once()

	p, err := f.send.Send(background, Draft{TimeName: 2, Message: "stretch"})
	require.NoError(t, err)
	assert.Equal(t, "2030-01-01T09:00:00.000Z", p.TargetTime, "unreadable server time keeps the requested time")
	assert.Equal(t, store.DefaultSleepCycle, p.SleepCycle)
}

func TestSendRejected(t *testing.T) {
	f := newFixture(t)
	f.api.On("CreatePrompt", mock.Anything, mock.Anything).Return(nil, rejected).Once()

	p, err := f.send.Send(background, Draft{TargetAcct: 7, Message: "hi"})
	require.Error(t, err)
	require.NotNil(t, p)
	assert.True(t, p.Processed, "server rejection is terminal")
	assert.Equal(t, http.StatusBadRequest, p.Status)

	unsent, err := f.db.ListUnsent()
	require.NoError(t, err)
	assert.Empty(t, unsent)
	assert.Zero(t, f.ref.Calls())
}

func TestSendUnreadableReplyIsTerminal(t *testing.T) {
	f := newFixture(t)
	garbled := fmt.Errorf("%w: POST /v1/user/1/prompt: http 201: unexpected end of JSON input", remote.ErrDecode)
	f.api.On("CreatePrompt", mock.Anything, mock.Anything).Return(nil, garbled).Once()

	p, err := f.send.Send(background, Draft{TargetAcct: 7, Message: "hi"})
	require.ErrorIs(t, err, remote.ErrDecode)
	assert.True(t, p.Processed)
	assert.Equal(t, remote.CodeGeneral, p.Status)

	unsent, err := f.db.ListUnsent()
	require.NoError(t, err)
	assert.Empty(t, unsent)
	assert.Equal(t, 0, f.send.RetryUnsent(background))
	f.api.AssertNumberOfCalls(t, "CreatePrompt", 1)
}

func TestSendOfflineThenRetry(t *testing.T) {
	f := newFixture(t)
	f.api.On("CreatePrompt", mock.Anything, mock.Anything).Return(nil, offline).Once()

	p, err := f.send.Send(background, Draft{TargetAcct: 7, Message: "hi"})
	require.ErrorIs(t, err, remote.ErrTransport)
	assert.False(t, p.Processed)
	assert.Equal(t, remote.CodeNetworkDown, p.Status)

	// Still offline: nothing goes through.
	f.api.On("CreatePrompt", mock.Anything, mock.Anything).Return(nil, offline).Once()
	assert.Equal(t, 0, f.send.RetryUnsent(background))

	f.api.On("CreatePrompt", mock.Anything, mock.Anything).
		Return(&remote.PromptResponse{NoteID: 42, NoteTime: "2030-01-01T09:00:30.000Z"}, nil).Once()
	assert.Equal(t, 1, f.send.RetryUnsent(background))

	got, err := f.db.GetPrompt(p.ID)
	require.NoError(t, err)
	assert.True(t, got.Processed)
	assert.Equal(t, int64(42), got.ServerID)
	assert.Equal(t, 0, got.Status)
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.send.Send(background, Draft{TargetAcct: 7})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = f.send.Send(background, Draft{TargetAcct: 99, Message: "x"})
	assert.ErrorIs(t, err, ErrUnknownTarget)

	_, err = f.send.Send(background, Draft{TargetAcct: 7, Message: "x", Recurrence: &recur.Draft{Unit: recur.UnitWeekday}})
	assert.ErrorIs(t, err, recur.ErrProblemDayWeek)

	_, err = f.send.Send(background, Draft{TargetAcct: 7, Message: "x", When: "tomorrow"})
	assert.ErrorIs(t, err, ktime.ErrParse)

	n, err := f.db.ListPrompts(0)
	require.NoError(t, err)
	assert.Empty(t, n, "invalid drafts are not stored")
}

func TestSendNotRegistered(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.SaveOwner(&store.Account{AcctID: 1}))

	_, err := f.send.Send(background, Draft{Message: "x"})
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestCancelPending(t *testing.T) {
	f := newFixture(t)
	p := f.sentPrompt(t, "2030-06-01T00:00:00.000Z", 500, 0, recur.None)
	f.api.On("DeletePrompt", mock.Anything, int64(500)).Return(nil).Once()

	require.NoError(t, f.send.Cancel(background, p.ID))
	got, err := f.db.GetPrompt(p.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 1, f.ref.Calls())
}

func TestCancelSnoozedUsesSnoozeID(t *testing.T) {
	f := newFixture(t)
	p := f.sentPrompt(t, "2030-06-01T00:00:00.000Z", 500, 501, recur.None)
	f.api.On("DeletePrompt", mock.Anything, int64(501)).Return(nil).Once()

	require.NoError(t, f.send.Cancel(background, p.ID))
}

func TestCancelRejectedKeepsRecord(t *testing.T) {
	f := newFixture(t)
	p := f.sentPrompt(t, "2030-06-01T00:00:00.000Z", 500, 0, recur.None)
	f.api.On("DeletePrompt", mock.Anything, int64(500)).Return(gone).Once()

	err := f.send.Cancel(background, p.ID)
	require.Error(t, err)

	got, err := f.db.GetPrompt(p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, http.StatusNotFound, got.Status)
}

func TestCancelOfflineRecordsNetworkDown(t *testing.T) {
	f := newFixture(t)
	p := f.sentPrompt(t, "2030-06-01T00:00:00.000Z", 500, 0, recur.None)
	f.api.On("DeletePrompt", mock.Anything, int64(500)).Return(offline).Once()

	require.Error(t, f.send.Cancel(background, p.ID))
	got, _ := f.db.GetPrompt(p.ID)
	require.NotNil(t, got)
	assert.Equal(t, remote.CodeNetworkDown, got.Status)
}

func TestCancelRecurringAlwaysDeletes(t *testing.T) {
	f := newFixture(t)
	p := f.sentPrompt(t, "2030-06-01T00:00:00.000Z", 500, 501, recur.Rule{Unit: recur.UnitDay, Period: 1, Number: 5})
	f.api.On("DeletePrompt", mock.Anything, int64(500)).Return(offline).Once()
	f.api.On("DeletePrompt", mock.Anything, int64(501)).Return(gone).Once()

	require.NoError(t, f.send.Cancel(background, p.ID))
	got, _ := f.db.GetPrompt(p.ID)
	assert.Nil(t, got)
}

func TestCancelPastSkipsService(t *testing.T) {
	f := newFixture(t)
	p := f.sentPrompt(t, "2029-12-31T00:00:00.000Z", 500, 0, recur.None)

	require.NoError(t, f.send.Cancel(background, p.ID))
	got, _ := f.db.GetPrompt(p.ID)
	assert.Nil(t, got)
	f.api.AssertNotCalled(t, "DeletePrompt", mock.Anything, mock.Anything)
}

func TestCancelUnknown(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.send.Cancel(background, 12345), ErrNotFound)
}

func TestSnooze(t *testing.T) {
	f := newFixture(t)
	p := f.sentPrompt(t, "2030-01-01T08:55:00.000Z", 500, 0, recur.None)

	f.api.On("SnoozePrompt", mock.Anything, remote.SnoozeRequest{
		When:     "2030-01-01T04:15:00-0500",
		Timezone: "America/New_York",
		SnoozeID: 500,
		SenderID: 1,
		Message:  "m",
	}).Return(&remote.PromptResponse{NoteID: 600, NoteTime: "2030-01-01T09:15:00.000Z"}, nil).Once()

	got, err := f.send.Snooze(background, 500)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, int64(600), got.SnoozeID)
	assert.Equal(t, "2030-01-01T09:15:00.000Z", got.TargetTime)
	assert.Equal(t, 1, f.ref.Calls())

	_, err = f.send.Snooze(background, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStartStopRetries(t *testing.T) {
	f := newFixture(t)
	f.send.cfg.RetryInterval = 10 * time.Millisecond

	p := &store.Prompt{TargetAcct: 7, FromAcct: 1, TargetTime: "2030-06-01T00:00:00.000Z", Message: "m", RecurUnit: int(recur.Invalid)}
	_, err := f.db.InsertPrompt(p)
	require.NoError(t, err)

	f.api.On("CreatePrompt", mock.Anything, mock.Anything).
		Return(&remote.PromptResponse{NoteID: 77, NoteTime: "2030-06-01T00:00:00.000Z"}, nil).Once()

	f.send.Start(background)
	require.Eventually(t, func() bool {
		got, err := f.db.GetPrompt(p.ID)
		return err == nil && got != nil && got.Processed
	}, 2*time.Second, 10*time.Millisecond)
	f.send.Stop()
}
