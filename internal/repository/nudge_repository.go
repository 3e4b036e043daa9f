package repository

import (
	"context"
	"database/sql"
	"fmt"

	"focusfriends/backend/internal/model"
)

type NudgeRepository struct {
	db *sql.DB
}

func NewNudgeRepository(db *sql.DB) *NudgeRepository {
	return &NudgeRepository{db: db}
}

func (r *NudgeRepository) Insert(ctx context.Context, nudge *model.Nudge) error {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO nudges (id, sender_id, receiver_id, type, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		nudge.ID,
		nudge.SenderID,
		nudge.ReceiverID,
		nudge.Type,
		formatTime(nudge.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert nudge: %w", err)
	}
	return nil
}

// ListRecent returns the newest nudges with both usernames resolved.
func (r *NudgeRepository) ListRecent(ctx context.Context, limit int) ([]model.NudgeView, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT n.id, n.sender_id, n.receiver_id, n.type, n.created_at,
		        COALESCE(s.username, ''), COALESCE(rcv.username, '')
		 FROM nudges n
		 LEFT JOIN profiles s ON s.id = n.sender_id
		 LEFT JOIN profiles rcv ON rcv.id = n.receiver_id
		 ORDER BY n.created_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list nudges: %w", err)
	}
	defer rows.Close()

	nudges := make([]model.NudgeView, 0)
	for rows.Next() {
		var view model.NudgeView
		var createdAt string
		if err := rows.Scan(
			&view.ID,
			&view.SenderID,
			&view.ReceiverID,
			&view.Type,
			&createdAt,
			&view.SenderUsername,
			&view.ReceiverUsername,
		); err != nil {
			return nil, fmt.Errorf("scan nudge: %w", err)
		}

		parsedCreatedAt, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse nudge created_at: %w", err)
		}
		view.CreatedAt = parsedCreatedAt
		nudges = append(nudges, view)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nudges: %w", err)
	}
	return nudges, nil
}
