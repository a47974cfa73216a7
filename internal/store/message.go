package store

import "time"

// UpsertMessage inserts or updates a message (idempotent on conv_key + ref).
func (db *DB) UpsertMessage(m *Message) error {
	now := time.Now().UnixMilli()
	if m.CreatedAt == 0 {
		m.CreatedAt = now
	}
	_, err := db.Exec(`
		INSERT INTO messages (conv_key, ref, sender, body, message_type, outgoing, status, stamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conv_key, ref) DO UPDATE SET
			sender = excluded.sender,
			body = excluded.body,
			status = excluded.status,
			stamp = excluded.stamp`,
		m.ConvKey, m.Ref, m.Sender, m.Body, m.MessageType, m.Outgoing, m.Status, m.Stamp, m.CreatedAt)
	return err
}

// UpdateMessageStatus sets the archived status of one message.
func (db *DB) UpdateMessageStatus(convKey string, ref uint64, status string) error {
	_, err := db.Exec(`UPDATE messages SET status = ? WHERE conv_key = ? AND ref = ?`, status, convKey, ref)
	return err
}

// ListMessages returns up to limit of the most recent messages for a
// conversation, in ref (insertion) order.
func (db *DB) ListMessages(convKey string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.Query(`
		SELECT id, conv_key, ref, sender, body, message_type, outgoing, status, stamp, created_at
		FROM messages
		WHERE conv_key = ?
		ORDER BY ref DESC
		LIMIT ?`, convKey, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConvKey, &m.Ref, &m.Sender, &m.Body, &m.MessageType, &m.Outgoing, &m.Status, &m.Stamp, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Query is newest-first so the limit keeps the tail; flip back to
	// insertion order for callers.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// DeleteMessage removes one archived message. Used to roll back an
// optimistic insert whose enqueue was rejected.
func (db *DB) DeleteMessage(convKey string, ref uint64) error {
	_, err := db.Exec(`DELETE FROM messages WHERE conv_key = ? AND ref = ?`, convKey, ref)
	return err
}

// ClearMessages removes all archived messages for a conversation.
func (db *DB) ClearMessages(convKey string) error {
	_, err := db.Exec(`DELETE FROM messages WHERE conv_key = ?`, convKey)
	return err
}

// FailStalePending marks outgoing pending messages as failed. Called once at
// boot: any job that was in flight when the previous process died can never
// complete, so its message must not hydrate as pending.
func (db *DB) FailStalePending() (int64, error) {
	res, err := db.Exec(`UPDATE messages SET status = 'failed' WHERE status = 'pending' AND outgoing = 1`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
