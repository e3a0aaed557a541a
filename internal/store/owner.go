package store

import (
	"database/sql"
	"errors"
	"time"
)

// GetOwner returns the profile's own account, or nil before registration.
func (db *DB) GetOwner() (*Account, error) {
	var a Account
	err := db.QueryRow(`
		SELECT acct_id, ticket, unique_name, display_name, timezone, sleep_cycle, device,
			contact_id, contact_name, contact_pic
		FROM owner WHERE id = 1`).
		Scan(&a.AcctID, &a.Ticket, &a.Unique, &a.Display, &a.Timezone, &a.SleepCycle, &a.Device,
			&a.ContactID, &a.ContactName, &a.ContactPic)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Primary = true
	a.Confirmed = true
	return &a, nil
}

// SaveOwner writes the registration fields of the owner. Contact fields
// already synced are kept unless a is carrying its own.
func (db *DB) SaveOwner(a *Account) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO owner (id, acct_id, ticket, unique_name, display_name, timezone, sleep_cycle, device,
			contact_id, contact_name, contact_pic, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			acct_id = excluded.acct_id,
			ticket = excluded.ticket,
			unique_name = excluded.unique_name,
			display_name = excluded.display_name,
			timezone = excluded.timezone,
			sleep_cycle = excluded.sleep_cycle,
			device = CASE WHEN excluded.device != '' THEN excluded.device ELSE owner.device END,
			contact_id = CASE WHEN excluded.contact_id != '' THEN excluded.contact_id ELSE owner.contact_id END,
			contact_name = CASE WHEN excluded.contact_name != '' THEN excluded.contact_name ELSE owner.contact_name END,
			contact_pic = CASE WHEN excluded.contact_pic != '' THEN excluded.contact_pic ELSE owner.contact_pic END,
			updated_at = excluded.updated_at`,
		a.AcctID, a.Ticket, a.Unique, a.Display, a.Timezone, a.SleepCycle, a.Device,
		a.ContactID, a.ContactName, a.ContactPic, now)
	return err
}

// UpdateOwnerContact copies device contact details onto the owner.
func (db *DB) UpdateOwnerContact(name, pic string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE owner SET contact_name = ?, contact_pic = ?, updated_at = ? WHERE id = 1`,
		name, pic, now)
	return err
}
