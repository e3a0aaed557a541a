// Package contacts reads the device contact book (a vCard file) so cached
// accounts can be linked to a local contact by phone or email.
package contacts

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/emersion/go-vcard"
	"go.uber.org/zap"
)

// minPhoneDigits is the shortest number compared by suffix. Shorter values
// must match exactly.
const minPhoneDigits = 7

// maxDecodeFailures stops decoding after this many broken cards in a row.
const maxDecodeFailures = 3

// Contact is the part of a device contact an account links to.
type Contact struct {
	ID      string
	Name    string
	Picture string
}

type entry struct {
	contact Contact
	phones  []string
	emails  []string
}

// Book is an in-memory, read-only contact book.
type Book struct {
	entries []entry
}

// Load reads a .vcf file. An empty path or a missing file yields an empty
// book: enrichment is best effort.
func Load(path string, logger *zap.Logger) (*Book, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		return &Book{}, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("contact book not found", zap.String("path", path))
		return &Book{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open contacts: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Decode(f, logger)
}

// Decode parses every card in r. Malformed cards are skipped.
func Decode(r io.Reader, logger *zap.Logger) (*Book, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Book{}
	dec := vcard.NewDecoder(r)
	failures := 0
	for {
		card, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Warn("skipping contact card", zap.Error(err))
			if failures++; failures >= maxDecodeFailures {
				break
			}
			continue
		}
		failures = 0
		b.add(card)
	}
	logger.Debug("contact book loaded", zap.Int("cards", len(b.entries)))
	return b, nil
}

func (b *Book) add(card vcard.Card) {
	e := entry{contact: Contact{
		ID:      card.Value(vcard.FieldUID),
		Name:    cardName(card),
		Picture: card.Value(vcard.FieldPhoto),
	}}
	for _, tel := range card.Values(vcard.FieldTelephone) {
		if d := digits(tel); d != "" {
			e.phones = append(e.phones, d)
		}
	}
	for _, mail := range card.Values(vcard.FieldEmail) {
		if m := strings.ToLower(strings.TrimSpace(mail)); m != "" {
			e.emails = append(e.emails, m)
		}
	}
	if e.contact.ID == "" {
		e.contact.ID = fmt.Sprintf("card-%d", len(b.entries)+1)
	}
	b.entries = append(b.entries, e)
}

func cardName(card vcard.Card) string {
	if fn := strings.TrimSpace(card.Value(vcard.FieldFormattedName)); fn != "" {
		return fn
	}
	if n := card.Name(); n != nil {
		return strings.TrimSpace(strings.Join([]string{n.GivenName, n.FamilyName}, " "))
	}
	return ""
}

// Len returns the number of cards in the book.
func (b *Book) Len() int {
	if b == nil {
		return 0
	}
	return len(b.entries)
}

// Lookup finds the contact for a unique name, by email when it contains an
// "@" and by phone number otherwise.
func (b *Book) Lookup(unique string) (Contact, bool) {
	if strings.Contains(unique, "@") {
		return b.LookupEmail(unique)
	}
	return b.LookupPhone(unique)
}

// LookupEmail matches an address ignoring case.
func (b *Book) LookupEmail(addr string) (Contact, bool) {
	if b == nil {
		return Contact{}, false
	}
	addr = strings.ToLower(strings.TrimSpace(addr))
	if addr == "" {
		return Contact{}, false
	}
	for _, e := range b.entries {
		for _, m := range e.emails {
			if m == addr {
				return e.contact, true
			}
		}
	}
	return Contact{}, false
}

// LookupPhone matches on digits only, so "+1 (555) 010-2000" and
// "5550102000" are the same number. Numbers of at least minPhoneDigits
// digits match when one ends with the other, which absorbs country codes.
func (b *Book) LookupPhone(number string) (Contact, bool) {
	if b == nil {
		return Contact{}, false
	}
	want := digits(number)
	if want == "" {
		return Contact{}, false
	}
	for _, e := range b.entries {
		for _, have := range e.phones {
			if samePhone(want, have) {
				return e.contact, true
			}
		}
	}
	return Contact{}, false
}

func samePhone(a, b string) bool {
	if a == b {
		return true
	}
	if len(a) < minPhoneDigits || len(b) < minPhoneDigits {
		return false
	}
	return strings.HasSuffix(a, b) || strings.HasSuffix(b, a)
}

func digits(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
