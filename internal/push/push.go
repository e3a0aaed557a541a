// Package push turns inbound push payloads into typed notifications.
package push

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/coolftc/prompt/internal/ktime"
	"github.com/coolftc/prompt/internal/recur"
	"github.com/coolftc/prompt/internal/store"
)

// Payload keys.
const (
	KeyType        = "name"
	KeyNoteID      = "noteId"
	KeyFrom        = "fromName"
	KeyFromID      = "fromId"
	KeyFromDisplay = "fromDisplay"
	KeyTime        = "time"
	KeyRecurUnit   = "recurUnit"
	KeyMessage     = "message"
	KeyMirror      = "mirror"
)

// Kind is the type tag of a payload.
type Kind string

const (
	KindNote   Kind = "NOTE"
	KindInvite Kind = "INVITE"
	KindFriend Kind = "FRIEND"
)

var (
	ErrUnknownType = errors.New("push: unknown notification type")
	ErrBadPayload  = errors.New("push: malformed payload")
)

// Notification is one of Note, Invite or Friend.
type Notification interface {
	Kind() Kind
}

// Note is a prompt being delivered to the owner.
type Note struct {
	ServerID  int64
	From      store.Account
	Time      string
	RecurUnit recur.Unit
	Message   string
}

// Invite asks the owner to connect.
type Invite struct {
	ServerID int64
	From     store.Account
	Message  string
}

// Friend tells the owner an invitation was accepted.
type Friend struct {
	ServerID int64
	From     store.Account
	Message  string
}

func (Note) Kind() Kind   { return KindNote }
func (Invite) Kind() Kind { return KindInvite }
func (Friend) Kind() Kind { return KindFriend }

// Decode maps a flat payload onto its notification type. When the sender
// is the owner the owner account is used as From.
func Decode(payload map[string]string, owner store.Account) (Notification, error) {
	kind := Kind(strings.ToUpper(strings.TrimSpace(payload[KeyType])))
	switch kind {
	case KindNote, KindInvite, KindFriend:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, payload[KeyType])
	}

	serverID, err := int64Field(payload, KeyNoteID)
	if err != nil {
		return nil, err
	}
	from, err := sender(payload, owner)
	if err != nil {
		return nil, err
	}
	msg := payload[KeyMessage]

	switch kind {
	case KindInvite:
		return Invite{ServerID: serverID, From: from, Message: msg}, nil
	case KindFriend:
		return Friend{ServerID: serverID, From: from, Message: msg}, nil
	}

	unit := recur.Invalid
	if v := strings.TrimSpace(payload[KeyRecurUnit]); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrBadPayload, KeyRecurUnit, v)
		}
		unit = recur.Unit(n)
	}

	when := payload[KeyTime]
	for _, tpl := range []string{ktime.Template3339fk, ktime.Template3339} {
		if out, err := ktime.Convert(when, tpl, ktime.Template3339fk, ktime.UTC); err == nil {
			when = out
			break
		}
	}
	return Note{ServerID: serverID, From: from, Time: when, RecurUnit: unit, Message: msg}, nil
}

func sender(payload map[string]string, owner store.Account) (store.Account, error) {
	unique := payload[KeyFrom]
	if owner.Unique != "" && strings.EqualFold(owner.Unique, unique) {
		return owner, nil
	}
	id, err := int64Field(payload, KeyFromID)
	if err != nil {
		return store.Account{}, err
	}
	return store.Account{
		AcctID:  id,
		Unique:  unique,
		Display: payload[KeyFromDisplay],
		Mirror:  payload[KeyMirror] == "1",
	}, nil
}

func int64Field(payload map[string]string, key string) (int64, error) {
	v := strings.TrimSpace(payload[key])
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrBadPayload, key, v)
	}
	return n, nil
}
