package storage

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

const createChannelsTable = `
CREATE TABLE IF NOT EXISTS channels (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	network TEXT NOT NULL,
	name TEXT NOT NULL,
	topic TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP,
	UNIQUE(network, name)
)`

const createMessagesTable = `
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	network TEXT NOT NULL,
	target TEXT NOT NULL,
	sender TEXT NOT NULL,
	text TEXT NOT NULL,
	kind TEXT NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	raw_line TEXT NOT NULL DEFAULT ''
)`

const createIndexes = `
CREATE INDEX IF NOT EXISTS idx_messages_network_target ON messages(network, target, timestamp);
CREATE INDEX IF NOT EXISTS idx_channels_network ON channels(network)`

// Migrate creates the schema.
func Migrate(db *sqlx.DB) error {
	migrations := []string{
		createChannelsTable,
		createMessagesTable,
		createIndexes,
	}
	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
