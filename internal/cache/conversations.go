package cache

import (
	"fmt"
	"time"

	"github.com/velora/pushsync/internal/convo"
	"github.com/velora/pushsync/internal/event"
)

// UpsertConversation inserts or updates one cached conversation.
func (db *DB) UpsertConversation(c convo.Conversation) error {
	var text, sender, kind string
	var createdAt int64
	if c.LastMessage != nil {
		text = c.LastMessage.Text
		sender = c.LastMessage.SenderID
		kind = string(c.LastMessage.Kind)
		createdAt = c.LastMessage.CreatedAt.UnixMilli()
	}
	_, err := db.Exec(`
		INSERT INTO conversations (id, counterpart_id, counterpart_ref, last_text, last_sender_id, last_kind, last_created_at, last_activity_at, unread_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			counterpart_id = excluded.counterpart_id,
			counterpart_ref = excluded.counterpart_ref,
			last_text = excluded.last_text,
			last_sender_id = excluded.last_sender_id,
			last_kind = excluded.last_kind,
			last_created_at = excluded.last_created_at,
			last_activity_at = excluded.last_activity_at,
			unread_count = excluded.unread_count,
			updated_at = excluded.updated_at`,
		c.ID, c.CounterpartID, c.CounterpartRef, text, sender, kind, createdAt,
		c.LastActivityAt.UnixMilli(), c.UnreadCount, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}

// ListConversations returns cached conversations by last activity descending.
func (db *DB) ListConversations() ([]convo.Conversation, error) {
	rows, err := db.Query(`
		SELECT id, counterpart_id, counterpart_ref, last_text, last_sender_id, last_kind, last_created_at, last_activity_at, unread_count
		FROM conversations
		ORDER BY last_activity_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []convo.Conversation
	for rows.Next() {
		var c convo.Conversation
		var text, sender, kind string
		var createdAt, activityAt int64
		if err := rows.Scan(&c.ID, &c.CounterpartID, &c.CounterpartRef, &text, &sender, &kind, &createdAt, &activityAt, &c.UnreadCount); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		c.LastActivityAt = time.UnixMilli(activityAt).UTC()
		if kind != "" {
			c.LastMessage = &event.MessagePreview{
				Text:      text,
				SenderID:  sender,
				Kind:      event.MessageKind(kind),
				CreatedAt: time.UnixMilli(createdAt).UTC(),
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ReplaceAll swaps the cached list for a fresh snapshot in one transaction.
func (db *DB) ReplaceAll(convs []convo.Conversation) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM conversations`); err != nil {
		return fmt.Errorf("clear conversations: %w", err)
	}

	now := time.Now().UnixMilli()
	for _, c := range convs {
		var text, sender, kind string
		var createdAt int64
		if c.LastMessage != nil {
			text = c.LastMessage.Text
			sender = c.LastMessage.SenderID
			kind = string(c.LastMessage.Kind)
			createdAt = c.LastMessage.CreatedAt.UnixMilli()
		}
		if _, err := tx.Exec(`
			INSERT INTO conversations (id, counterpart_id, counterpart_ref, last_text, last_sender_id, last_kind, last_created_at, last_activity_at, unread_count, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.CounterpartID, c.CounterpartRef, text, sender, kind, createdAt,
			c.LastActivityAt.UnixMilli(), c.UnreadCount, now); err != nil {
			return fmt.Errorf("insert conversation %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}
