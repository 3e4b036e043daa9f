package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"focusfriends/backend/internal/model"
)

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, user_id, subject, start_time, end_time, duration_minutes,
	is_public_now, scheduled_visibility, created_at, updated_at`

func (r *SessionRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return tx, nil
}

func (r *SessionRepository) Insert(ctx context.Context, session *model.Session) error {
	var durationMinutes interface{}
	if session.DurationMinutes != nil {
		durationMinutes = *session.DurationMinutes
	}

	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO sessions (
			id, user_id, subject, start_time, end_time, duration_minutes,
			is_public_now, scheduled_visibility, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.UserID,
		session.Subject,
		formatTime(session.StartTime),
		nullableTime(session.EndTime),
		durationMinutes,
		session.IsPublicNow,
		nullableString(session.ScheduledVisibility),
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*model.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func (r *SessionRepository) GetByIDTx(ctx context.Context, tx *sql.Tx, id string) (*model.Session, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// EndTx records the end time and duration of a session.
func (r *SessionRepository) EndTx(ctx context.Context, tx *sql.Tx, session *model.Session) error {
	var durationMinutes interface{}
	if session.DurationMinutes != nil {
		durationMinutes = *session.DurationMinutes
	}

	_, err := tx.ExecContext(
		ctx,
		`UPDATE sessions
		 SET end_time = ?,
		     duration_minutes = ?,
		     updated_at = ?
		 WHERE id = ?`,
		nullableTime(session.EndTime),
		durationMinutes,
		formatTime(session.UpdatedAt),
		session.ID,
	)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

func (r *SessionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]model.Session, error) {
	return r.list(
		ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE user_id = ?
		 ORDER BY start_time DESC
		 LIMIT ?`,
		userID,
		limit,
	)
}

// ListCompletedCreatedSince returns finished sessions created at or after
// cutoff, newest first.
func (r *SessionRepository) ListCompletedCreatedSince(ctx context.Context, cutoff time.Time, limit int) ([]model.Session, error) {
	return r.list(
		ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE end_time IS NOT NULL AND created_at >= ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		formatTime(cutoff),
		limit,
	)
}

// ListCompletedStartedSince returns finished sessions started at or after
// cutoff in start order.
func (r *SessionRepository) ListCompletedStartedSince(ctx context.Context, cutoff time.Time) ([]model.Session, error) {
	return r.list(
		ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE end_time IS NOT NULL AND start_time >= ?
		 ORDER BY start_time ASC, id ASC`,
		formatTime(cutoff),
	)
}

func (r *SessionRepository) list(ctx context.Context, query string, args ...interface{}) ([]model.Session, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]model.Session, 0)
	for rows.Next() {
		session, scanErr := scanSession(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		sessions = append(sessions, *session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

func scanSession(s scanner) (*model.Session, error) {
	session := model.Session{}
	var startTime string
	var endTime sql.NullString
	var durationMinutes sql.NullInt64
	var visibility sql.NullString
	var createdAt string
	var updatedAt string
	err := s.Scan(
		&session.ID,
		&session.UserID,
		&session.Subject,
		&startTime,
		&endTime,
		&durationMinutes,
		&session.IsPublicNow,
		&visibility,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	parsedStartTime, err := parseTime(startTime)
	if err != nil {
		return nil, fmt.Errorf("parse session start_time: %w", err)
	}
	session.StartTime = parsedStartTime

	if endTime.Valid {
		parsedEndTime, parseErr := parseTime(endTime.String)
		if parseErr != nil {
			return nil, fmt.Errorf("parse session end_time: %w", parseErr)
		}
		session.EndTime = &parsedEndTime
	}
	if durationMinutes.Valid {
		value := int(durationMinutes.Int64)
		session.DurationMinutes = &value
	}
	if visibility.Valid {
		value := visibility.String
		session.ScheduledVisibility = &value
	}

	parsedCreatedAt, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse session created_at: %w", err)
	}
	session.CreatedAt = parsedCreatedAt

	parsedUpdatedAt, err := parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse session updated_at: %w", err)
	}
	session.UpdatedAt = parsedUpdatedAt

	return &session, nil
}
