package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const promptColumns = `id, target_acct, target_unique, target_name, from_acct, from_unique, from_name,
	target_time, time_name, time_adj, sleep_cycle, timezone,
	recur_unit, recur_period, recur_number, recur_end, message,
	server_id, snooze_id, status, processed, created_at`

func scanPrompt(s scanner) (*Prompt, error) {
	var p Prompt
	if err := s.Scan(&p.ID, &p.TargetAcct, &p.TargetUnique, &p.TargetName, &p.FromAcct, &p.FromUnique, &p.FromName,
		&p.TargetTime, &p.TimeName, &p.TimeAdj, &p.SleepCycle, &p.Timezone,
		&p.RecurUnit, &p.RecurPeriod, &p.RecurNumber, &p.RecurEnd, &p.Message,
		&p.ServerID, &p.SnoozeID, &p.Status, &p.Processed, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// InsertPrompt records a new prompt as unprocessed and sets p.ID.
func (db *DB) InsertPrompt(p *Prompt) (int64, error) {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`
		INSERT INTO prompts (target_acct, target_unique, target_name, from_acct, from_unique, from_name,
			target_time, time_name, time_adj, sleep_cycle, timezone,
			recur_unit, recur_period, recur_number, recur_end, message,
			server_id, snooze_id, status, processed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0, 0, ?)`,
		p.TargetAcct, p.TargetUnique, p.TargetName, p.FromAcct, p.FromUnique, p.FromName,
		p.TargetTime, p.TimeName, p.TimeAdj, p.SleepCycle, p.Timezone,
		p.RecurUnit, p.RecurPeriod, p.RecurNumber, p.RecurEnd, TruncateMessage(p.Message), now)
	if err != nil {
		return 0, fmt.Errorf("insert prompt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	p.ID = id
	p.CreatedAt = now
	p.Processed = false
	return id, nil
}

// MarkPromptSent stores the server's time and id and marks the prompt processed.
func (db *DB) MarkPromptSent(id int64, targetTime string, serverID int64) error {
	_, err := db.Exec(`
		UPDATE prompts SET target_time = ?, server_id = ?, status = 0, processed = 1
		WHERE id = ?`, targetTime, serverID, id)
	return err
}

// MarkPromptStatus records an outcome code. processed=false leaves the
// prompt eligible for another send attempt.
func (db *DB) MarkPromptStatus(id int64, status int, processed bool) error {
	_, err := db.Exec(`UPDATE prompts SET status = ?, processed = ? WHERE id = ?`,
		status, boolInt(processed), id)
	return err
}

// MarkPromptFailed records a terminal rejection. The prompt is not retried.
func (db *DB) MarkPromptFailed(id int64, status int) error {
	return db.MarkPromptStatus(id, status, true)
}

// UpdateSnooze moves a prompt, found by server id, to its snoozed time.
func (db *DB) UpdateSnooze(serverID int64, targetTime string, snoozeID int64) error {
	res, err := db.Exec(`UPDATE prompts SET target_time = ?, snooze_id = ? WHERE server_id = ?`,
		targetTime, snoozeID, serverID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update snooze: no prompt with server id %d", serverID)
	}
	return nil
}

// DeletePrompt removes a prompt by local id.
func (db *DB) DeletePrompt(id int64) error {
	_, err := db.Exec(`DELETE FROM prompts WHERE id = ?`, id)
	return err
}

// GetPrompt returns the prompt with the given local id, or nil.
func (db *DB) GetPrompt(id int64) (*Prompt, error) {
	p, err := scanPrompt(db.QueryRow(`SELECT `+promptColumns+` FROM prompts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// GetPromptByServerID returns the prompt the service knows as serverID, or nil.
func (db *DB) GetPromptByServerID(serverID int64) (*Prompt, error) {
	p, err := scanPrompt(db.QueryRow(`SELECT `+promptColumns+` FROM prompts WHERE server_id = ? ORDER BY id LIMIT 1`, serverID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// ListPrompts returns prompts newest target time first, at most limit rows
// when limit is positive.
func (db *DB) ListPrompts(limit int) ([]Prompt, error) {
	if limit <= 0 {
		limit = -1
	}
	return db.queryPrompts(`SELECT `+promptColumns+` FROM prompts ORDER BY target_time DESC, id DESC LIMIT ?`, limit)
}

// ListUnsent returns prompts the service has not accepted yet, oldest first.
func (db *DB) ListUnsent() ([]Prompt, error) {
	return db.queryPrompts(`SELECT ` + promptColumns + ` FROM prompts WHERE processed = 0 ORDER BY id`)
}

// SearchPrompts returns prompts whose message or party names contain term.
func (db *DB) SearchPrompts(term string) ([]Prompt, error) {
	like := "%" + term + "%"
	return db.queryPrompts(`SELECT `+promptColumns+` FROM prompts
		WHERE message LIKE ? OR target_name LIKE ? OR target_unique LIKE ? OR from_name LIKE ?
		ORDER BY target_time DESC, id DESC`, like, like, like, like)
}

// CountPendingSince counts prompts due at or after now. Target times are
// fixed-width UTC strings, so string order is time order.
func (db *DB) CountPendingSince(now string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(id) FROM prompts WHERE target_time >= ?`, now).Scan(&n)
	return n, err
}

func (db *DB) queryPrompts(query string, args ...any) ([]Prompt, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
