package store

import (
	"database/sql"
	"time"
)

// UpsertConversation inserts or updates a conversation record.
func (db *DB) UpsertConversation(c *Conversation) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (key, is_group, name, last_message_at, last_message_preview, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			is_group = excluded.is_group,
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE conversations.name END,
			last_message_at = excluded.last_message_at,
			last_message_preview = excluded.last_message_preview,
			updated_at = excluded.updated_at`,
		c.Key, c.IsGroup, c.Name, c.LastMessageAt, c.LastMessagePreview, now)
	return err
}

// ListConversations returns conversations sorted by last message timestamp
// descending.
func (db *DB) ListConversations(limit, offset int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT key, is_group, name, last_message_at, last_message_preview
		FROM conversations
		ORDER BY last_message_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.Key, &c.IsGroup, &c.Name, &c.LastMessageAt, &c.LastMessagePreview); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// GetConversation returns a single conversation by key, or nil if absent.
func (db *DB) GetConversation(key string) (*Conversation, error) {
	var c Conversation
	err := db.QueryRow(`
		SELECT key, is_group, name, last_message_at, last_message_preview
		FROM conversations WHERE key = ?`, key).
		Scan(&c.Key, &c.IsGroup, &c.Name, &c.LastMessageAt, &c.LastMessagePreview)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ConversationKeys returns every key that has at least one archived message.
// Used when hydrating the in-memory store at boot.
func (db *DB) ConversationKeys() ([]string, error) {
	rows, err := db.Query(`SELECT DISTINCT conv_key FROM messages ORDER BY conv_key`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Counts returns the number of archived conversations and messages.
func (db *DB) Counts() (conversations, messages int64, err error) {
	if err = db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&conversations); err != nil {
		return 0, 0, err
	}
	if err = db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&messages); err != nil {
		return 0, 0, err
	}
	return conversations, messages, nil
}
