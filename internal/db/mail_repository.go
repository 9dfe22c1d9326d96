package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Message — письмо почтовой системы.
type Message struct {
	ID         int32
	SenderID   int32
	ReceiverID int32
	Subject    string
	Content    string
	CreatedAt  time.Time
}

// MailRepository управляет письмами.
type MailRepository struct {
	db  *pgxpool.Pool
	ids IDAllocator
}

// NewMailRepository создаёт новый MailRepository.
func NewMailRepository(db *pgxpool.Pool, ids IDAllocator) *MailRepository {
	return &MailRepository{db: db, ids: ids}
}

// Send сохраняет письмо и возвращает его ID.
func (r *MailRepository) Send(ctx context.Context, senderID, receiverID int32, subject, content string) (int32, error) {
	id, err := r.ids.Allocate()
	if err != nil {
		return 0, fmt.Errorf("allocating message id: %w", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO messages (message_id, sender_id, receiver_id, subject, content)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, senderID, receiverID, subject, content,
	)
	if err != nil {
		r.ids.Release(id)
		return 0, fmt.Errorf("sending message from %d to %d: %w", senderID, receiverID, err)
	}

	return id, nil
}

// Inbox возвращает письма получателя, новые первыми.
func (r *MailRepository) Inbox(ctx context.Context, receiverID int32) ([]Message, error) {
	rows, err := r.db.Query(ctx,
		`SELECT message_id, sender_id, receiver_id, subject, content, created_at
		 FROM messages WHERE receiver_id = $1
		 ORDER BY created_at DESC, message_id DESC`, receiverID)
	if err != nil {
		return nil, fmt.Errorf("querying inbox of %d: %w", receiverID, err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Subject, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return msgs, nil
}

// Delete удаляет письмо и возвращает его ID в пул.
func (r *MailRepository) Delete(ctx context.Context, messageID int32) error {
	result, err := r.db.Exec(ctx, `DELETE FROM messages WHERE message_id = $1`, messageID)
	if err != nil {
		return fmt.Errorf("deleting message %d: %w", messageID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("message %d: %w", messageID, ErrNotFound)
	}

	r.ids.Release(messageID)
	return nil
}
