package contacts_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coolftc/prompt/internal/contacts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleVCF = strings.Join([]string{
	"BEGIN:VCARD",
	"VERSION:3.0",
	"UID:c-ann",
	"FN:Ann Archer",
	"TEL;TYPE=cell:+1 (555) 010-2000",
	"EMAIL:Ann@Example.com",
	"PHOTO;VALUE=uri:https://pics.example/ann.png",
	"END:VCARD",
	"BEGIN:VCARD",
	"VERSION:3.0",
	"N:Baker;Bob;;;",
	"TEL:911",
	"END:VCARD",
	"",
}, "\r\n")

func TestLookup(t *testing.T) {
	book, err := contacts.Decode(strings.NewReader(sampleVCF), nil)
	require.NoError(t, err)
	require.Equal(t, 2, book.Len())

	c, ok := book.LookupPhone("5550102000")
	require.True(t, ok)
	assert.Equal(t, contacts.Contact{ID: "c-ann", Name: "Ann Archer", Picture: "https://pics.example/ann.png"}, c)

	c, ok = book.Lookup("ann@example.COM")
	require.True(t, ok)
	assert.Equal(t, "c-ann", c.ID)

	c, ok = book.Lookup("911")
	require.True(t, ok)
	assert.Equal(t, "Bob Baker", c.Name)
	assert.Equal(t, "card-2", c.ID)

	_, ok = book.Lookup("1911")
	assert.False(t, ok, "short numbers must match exactly")

	_, ok = book.Lookup("nobody@example.com")
	assert.False(t, ok)

	_, ok = book.Lookup("")
	assert.False(t, ok)
}

func TestLoadMissingFile(t *testing.T) {
	book, err := contacts.Load(filepath.Join(t.TempDir(), "none.vcf"), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, book.Len())

	book, err = contacts.Load("", nil)
	require.NoError(t, err)
	_, ok := book.Lookup("5550102000")
	assert.False(t, ok)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.vcf")
	require.NoError(t, os.WriteFile(path, []byte(sampleVCF), 0o600))

	book, err := contacts.Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, book.Len())
}

func TestNilBook(t *testing.T) {
	var book *contacts.Book
	assert.Equal(t, 0, book.Len())
	_, ok := book.Lookup("a@b.c")
	assert.False(t, ok)
}
