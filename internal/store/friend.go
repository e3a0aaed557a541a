package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const friendColumns = `id, acct_id, unique_name, display_name, timezone, sleep_cycle,
	contact_id, contact_name, contact_pic, mirror, pending, confirmed`

type scanner interface {
	Scan(dest ...any) error
}

func scanFriend(s scanner) (*Account, error) {
	var a Account
	if err := s.Scan(&a.LocalID, &a.AcctID, &a.Unique, &a.Display, &a.Timezone, &a.SleepCycle,
		&a.ContactID, &a.ContactName, &a.ContactPic, &a.Mirror, &a.Pending, &a.Confirmed); err != nil {
		return nil, err
	}
	return &a, nil
}

// InsertFriend adds an account keyed by its server id. A second insert for
// the same acct_id overwrites the mirrored fields, so the cache never holds
// two rows for one account.
func (db *DB) InsertFriend(a *Account) (int64, error) {
	if a.AcctID <= 0 {
		return 0, fmt.Errorf("insert friend: acct id %d", a.AcctID)
	}
	now := time.Now().UnixMilli()
	var id int64
	err := db.QueryRow(`
		INSERT INTO friends (acct_id, unique_name, display_name, timezone, sleep_cycle,
			contact_id, contact_name, contact_pic, mirror, pending, confirmed, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(acct_id) DO UPDATE SET
			unique_name = excluded.unique_name,
			display_name = excluded.display_name,
			timezone = excluded.timezone,
			sleep_cycle = excluded.sleep_cycle,
			mirror = excluded.mirror,
			pending = excluded.pending,
			confirmed = excluded.confirmed,
			updated_at = excluded.updated_at
		RETURNING id`,
		a.AcctID, a.Unique, a.Display, a.Timezone, a.SleepCycle,
		a.ContactID, a.ContactName, a.ContactPic, boolInt(a.Mirror), boolInt(a.Pending), boolInt(a.Confirmed), now).
		Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert friend %d: %w", a.AcctID, err)
	}
	a.LocalID = id
	return id, nil
}

// UpdateFriend overwrites the mirrored fields and status of a cached row.
func (db *DB) UpdateFriend(a *Account) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE friends SET unique_name = ?, display_name = ?, timezone = ?, sleep_cycle = ?,
			mirror = ?, pending = ?, confirmed = ?, updated_at = ?
		WHERE id = ?`,
		a.Unique, a.Display, a.Timezone, a.SleepCycle,
		boolInt(a.Mirror), boolInt(a.Pending), boolInt(a.Confirmed), now, a.LocalID)
	return err
}

// UpdateFriendContact links a cached row to a device contact.
func (db *DB) UpdateFriendContact(id int64, contactID, name, pic string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE friends SET contact_id = ?, contact_name = ?, contact_pic = ?, updated_at = ?
		WHERE id = ?`, contactID, name, pic, now, id)
	return err
}

// DeleteFriend removes a cached row by local id.
func (db *DB) DeleteFriend(id int64) error {
	_, err := db.Exec(`DELETE FROM friends WHERE id = ?`, id)
	return err
}

// GetFriend returns the row with the given local id, or nil.
func (db *DB) GetFriend(id int64) (*Account, error) {
	a, err := scanFriend(db.QueryRow(`SELECT `+friendColumns+` FROM friends WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// GetFriendByAcct returns the row with the given server account id, or nil.
func (db *DB) GetFriendByAcct(acctID int64) (*Account, error) {
	a, err := scanFriend(db.QueryRow(`SELECT `+friendColumns+` FROM friends WHERE acct_id = ?`, acctID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// ListFriends returns every cached account ordered by display name.
func (db *DB) ListFriends() ([]Account, error) {
	return db.queryFriends(`SELECT ` + friendColumns + ` FROM friends ORDER BY display_name COLLATE NOCASE, id`)
}

// SearchFriends returns accounts whose unique, display or contact name
// contains term.
func (db *DB) SearchFriends(term string) ([]Account, error) {
	like := "%" + term + "%"
	return db.queryFriends(`SELECT `+friendColumns+` FROM friends
		WHERE unique_name LIKE ? OR display_name LIKE ? OR contact_name LIKE ?
		ORDER BY display_name COLLATE NOCASE, id`, like, like, like)
}

// FriendCount returns the number of cached accounts.
func (db *DB) FriendCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM friends`).Scan(&count)
	return count, err
}

func (db *DB) queryFriends(query string, args ...any) ([]Account, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Account
	for rows.Next() {
		a, err := scanFriend(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
