package bus

import "time"

// Event kinds. Subscribers filter by prefix ("refresh.", "prompt.", ...).
const (
	KindStatusChanged    = "daemon.status_changed"
	KindFriendsChanged   = "friends.changed"
	KindRefreshCompleted = "refresh.completed"
	KindRefreshFailed    = "refresh.failed"
	KindPromptSent       = "prompt.sent"
	KindPromptFailed     = "prompt.failed"
	KindPromptCanceled   = "prompt.canceled"
	KindPromptSnoozed    = "prompt.snoozed"
	KindPushNote         = "push.note"
	KindPushInvite       = "push.invite"
	KindPushFriend       = "push.friend"
)

// Event is something that happened inside the daemon.
type Event struct {
	ID        string
	Kind      string
	Timestamp time.Time
	Payload   any
}
