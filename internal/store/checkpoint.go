package store

import (
	"database/sql"
	"errors"
	"time"
)

// Checkpoint keys shared by the daemon components.
const (
	KeyFriendsLastSync = "friends.last_sync"
	KeyPendingPrompts  = "prompts.pending"
	KeyBaseURL         = "service.base_url"
	KeyBaseURLChecked  = "service.base_url_checked"
)

// SetCheckpoint stores a value under key.
func (db *DB) SetCheckpoint(key, value string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

// GetCheckpoint returns the value under key, or "" when unset.
func (db *DB) GetCheckpoint(key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}
