package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ConversationMessage is one exchange turn in an assistant session.
type ConversationMessage struct {
	Role      string         `json:"role"` // user, assistant
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// FindOrCreateConversation returns an existing active conversation for the
// user and type, or creates a new one.
func (s *Store) FindOrCreateConversation(ctx context.Context, ownerID int64, sessionID, conversationType string) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO conversation (owner_id, session_id, conversation_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id, session_id)
		DO UPDATE SET last_message_at = now()
		RETURNING id`,
		ownerID, sessionID, conversationType,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("find or create conversation: %w", err)
	}
	return id, nil
}

// AppendConversationMessage stores a message in the given conversation.
func (s *Store) AppendConversationMessage(ctx context.Context, conversationID int64, msg ConversationMessage) error {
	var metadataJSON []byte
	if len(msg.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("marshal message metadata: %w", err)
		}
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO conversation_message (conversation_id, role, content, metadata)
		VALUES ($1, $2, $3, $4)`,
		conversationID, msg.Role, msg.Content, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("append conversation message: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		UPDATE conversation
		SET message_count = message_count + 1, last_message_at = now()
		WHERE id = $1`,
		conversationID)
	if err != nil {
		return fmt.Errorf("update conversation counters: %w", err)
	}
	return nil
}

// ConversationMessages retrieves messages for a conversation, oldest first.
func (s *Store) ConversationMessages(ctx context.Context, conversationID int64, limit int) ([]ConversationMessage, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, `
		SELECT role, content, metadata, created_at
		FROM conversation_message
		WHERE conversation_id = $1
		ORDER BY created_at ASC
		LIMIT $2`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation messages: %w", err)
	}
	defer rows.Close()

	var msgs []ConversationMessage
	for rows.Next() {
		var msg ConversationMessage
		var metadataJSON []byte

		if err := rows.Scan(&msg.Role, &msg.Content, &metadataJSON, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation message: %w", err)
		}
		if len(metadataJSON) > 0 {
			json.Unmarshal(metadataJSON, &msg.Metadata)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}
