package sync

import (
	"strings"

	"github.com/coolftc/prompt/internal/remote"
	"github.com/coolftc/prompt/internal/store"
)

// Category is the remote list an account was reported in.
type Category int

const (
	CategoryFriend Category = iota // confirmed both ways
	CategoryRSVP                   // invitation sent by the owner
	CategoryInvite                 // invitation received by the owner
)

func (c Category) String() string {
	switch c {
	case CategoryFriend:
		return "friend"
	case CategoryRSVP:
		return "rsvp"
	case CategoryInvite:
		return "invite"
	default:
		return "unknown"
	}
}

// Plan is the set of cache mutations that makes the local friend table
// match the remote directory. Deletes are applied first.
type Plan struct {
	Deletes []store.Account
	Updates []store.Account
	Adds    []store.Account
	// Skipped holds remote entries without a usable account id.
	Skipped []remote.Friend
}

// Empty reports whether the plan changes nothing.
func (p Plan) Empty() bool {
	return len(p.Deletes) == 0 && len(p.Updates) == 0 && len(p.Adds) == 0
}

type classified struct {
	friend   remote.Friend
	category Category
}

// Diff computes the three-way reconciliation between the remote lists and
// the cached accounts. An account reported in more than one list takes the
// first of friends, rsvps, invites. Primary accounts are never touched.
func Diff(in *remote.Invitations, local []store.Account) Plan {
	var plan Plan
	if in == nil {
		return plan
	}

	byAcct := make(map[int64]classified)
	var order []int64
	lists := []struct {
		entries  []remote.Friend
		category Category
	}{
		{in.Friends, CategoryFriend},
		{in.RSVPs, CategoryRSVP},
		{in.Invites, CategoryInvite},
	}
	for _, l := range lists {
		for _, f := range l.entries {
			if f.ID <= 0 {
				plan.Skipped = append(plan.Skipped, f)
				continue
			}
			if _, seen := byAcct[f.ID]; seen {
				continue
			}
			byAcct[f.ID] = classified{friend: f, category: l.category}
			order = append(order, f.ID)
		}
	}

	cached := make(map[int64]bool, len(local))
	for _, a := range local {
		if a.Primary {
			continue
		}
		c, ok := byAcct[a.AcctID]
		if !ok {
			plan.Deletes = append(plan.Deletes, a)
			continue
		}
		cached[a.AcctID] = true
		want := apply(a, c)
		if !same(a, want) {
			plan.Updates = append(plan.Updates, want)
		}
	}

	for _, id := range order {
		if cached[id] {
			continue
		}
		plan.Adds = append(plan.Adds, apply(store.Account{}, byAcct[id]))
	}
	return plan
}

// apply overlays the remote fields and list status on a, keeping its local
// identity and contact link.
func apply(a store.Account, c classified) store.Account {
	a.AcctID = c.friend.ID
	a.Unique = c.friend.Unique
	a.Display = c.friend.Display
	a.Timezone = c.friend.Timezone
	a.SleepCycle = c.friend.SleepCycle
	a.Mirror = c.friend.Mirror
	a.Confirmed = c.category == CategoryFriend
	a.Pending = c.category == CategoryRSVP
	return a
}

// same compares the mirrored fields. Names and zones compare ignoring case.
func same(a, b store.Account) bool {
	return strings.EqualFold(a.Unique, b.Unique) &&
		strings.EqualFold(a.Display, b.Display) &&
		strings.EqualFold(a.Timezone, b.Timezone) &&
		a.SleepCycle == b.SleepCycle &&
		a.Mirror == b.Mirror &&
		a.Confirmed == b.Confirmed &&
		a.Pending == b.Pending
}
