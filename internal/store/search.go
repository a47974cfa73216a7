package store

// SearchMessages performs a full-text search on message bodies.
func (db *DB) SearchMessages(query string, convKey string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT m.id, m.conv_key, m.ref, m.sender, m.body, m.message_type,
		       m.outgoing, m.status, m.stamp, m.created_at,
		       snippet(messages_fts, '<<', '>>', '...', -1, 32)
		FROM messages_fts
		JOIN messages m ON m.id = messages_fts.docid
		WHERE messages_fts MATCH ?`

	args := []any{query}
	if convKey != "" {
		q += " AND m.conv_key = ?"
		args = append(args, convKey)
	}
	q += " ORDER BY m.created_at DESC, m.id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(
			&r.Message.ID, &r.Message.ConvKey, &r.Message.Ref,
			&r.Message.Sender, &r.Message.Body, &r.Message.MessageType,
			&r.Message.Outgoing, &r.Message.Status, &r.Message.Stamp,
			&r.Message.CreatedAt, &r.Snippet,
		); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
