package store

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/coolftc/prompt/internal/recur"
)

// MaxMessageLength caps the text of a prompt, in characters.
const MaxMessageLength = 1024

// DefaultSleepCycle is the sleep cycle assumed for accounts that have none.
const DefaultSleepCycle = 2

// Account is a person known to the profile: a friend, an invitation in
// either direction, or the owner (Primary).
type Account struct {
	LocalID     int64
	AcctID      int64
	Unique      string
	Display     string
	Timezone    string
	SleepCycle  int
	ContactID   string
	ContactName string
	ContactPic  string
	Mirror      bool
	Pending     bool
	Confirmed   bool
	Primary     bool

	// Owner only.
	Ticket string
	Device string
}

// BestName prefers the display name, then the device contact name, then
// the unique name.
func (a *Account) BestName() string {
	switch {
	case a.Display != "":
		return a.Display
	case a.ContactName != "":
		return a.ContactName
	default:
		return a.Unique
	}
}

// BestID is the local id when the account is cached, else the contact id.
func (a *Account) BestID() string {
	if a.LocalID > 0 {
		return strconv.FormatInt(a.LocalID, 10)
	}
	return a.ContactID
}

// IsEmail reports whether the unique name looks like an email address.
func (a *Account) IsEmail() bool {
	return strings.Contains(a.Unique, "@")
}

// Registered reports whether the account can talk to the service.
func (a *Account) Registered() bool {
	return a != nil && a.Ticket != "" && a.AcctID > 0
}

// Found reports whether term appears in any of the names, ignoring case.
func (a *Account) Found(term string) bool {
	return containsFold(term, a.Unique, a.Display, a.ContactName)
}

// Prompt is a scheduled message, mirrored from the service once processed.
type Prompt struct {
	ID           int64
	TargetAcct   int64
	TargetUnique string
	TargetName   string
	FromAcct     int64
	FromUnique   string
	FromName     string
	TargetTime   string
	TimeName     int
	TimeAdj      int
	SleepCycle   int
	Timezone     string
	RecurUnit    int
	RecurPeriod  int
	RecurNumber  int
	RecurEnd     string
	Message      string
	ServerID     int64
	SnoozeID     int64
	Status       int
	Processed    bool
	CreatedAt    int64
}

// Rule returns the recurrence carried by the prompt.
func (p *Prompt) Rule() recur.Rule {
	return recur.Rule{
		Unit:   recur.Unit(p.RecurUnit),
		Period: p.RecurPeriod,
		Number: p.RecurNumber,
		End:    p.RecurEnd,
	}
}

// SetRule stores r in the recurrence fields.
func (p *Prompt) SetRule(r recur.Rule) {
	p.RecurUnit = int(r.Unit)
	p.RecurPeriod = r.Period
	p.RecurNumber = r.Number
	p.RecurEnd = r.End
}

// Recurs reports whether the prompt repeats.
func (p *Prompt) Recurs() bool {
	return recur.Unit(p.RecurUnit) != recur.Invalid
}

// Found reports whether term appears in the message or either party's names.
func (p *Prompt) Found(term string) bool {
	return containsFold(term, p.Message, p.TargetName, p.TargetUnique, p.FromName, p.FromUnique)
}

// TruncateMessage cuts s to MaxMessageLength characters.
func TruncateMessage(s string) string {
	if utf8.RuneCountInString(s) <= MaxMessageLength {
		return s
	}
	return string([]rune(s)[:MaxMessageLength])
}

func containsFold(term string, fields ...string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}
