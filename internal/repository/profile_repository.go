package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"focusfriends/backend/internal/model"
)

type ProfileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

const profileColumns = `id, username, avatar_url, total_focus_hours, current_status, created_at, updated_at`

func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*model.Profile, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = ?`,
		id,
	)
	return scanProfile(row)
}

// ListExcept returns every profile other than userID, ordered by username.
func (r *ProfileRepository) ListExcept(ctx context.Context, userID string) ([]model.Profile, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id != ? ORDER BY username ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]model.Profile, 0)
	for rows.Next() {
		profile, scanErr := scanProfile(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		profiles = append(profiles, *profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return profiles, nil
}

// Usernames resolves ids to usernames. Unknown ids are absent from the result.
func (r *ProfileRepository) Usernames(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, username FROM profiles WHERE id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list usernames: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, username string
		if err := rows.Scan(&id, &username); err != nil {
			return nil, fmt.Errorf("scan username: %w", err)
		}
		names[id] = username
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usernames: %w", err)
	}
	return names, nil
}

func (r *ProfileRepository) UpdateStatus(ctx context.Context, id, status string, now time.Time) (*model.Profile, error) {
	return r.updateStatus(ctx, r.db, id, status, 0, now)
}

// CompleteSessionTx reverts the profile to idle and credits focused hours.
func (r *ProfileRepository) CompleteSessionTx(ctx context.Context, tx *sql.Tx, id string, hours float64, now time.Time) (*model.Profile, error) {
	return r.updateStatus(ctx, tx, id, "idle", hours, now)
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (r *ProfileRepository) updateStatus(ctx context.Context, q execQuerier, id, status string, hours float64, now time.Time) (*model.Profile, error) {
	result, err := q.ExecContext(
		ctx,
		`UPDATE profiles
		 SET current_status = ?,
		     total_focus_hours = total_focus_hours + ?,
		     updated_at = ?
		 WHERE id = ?`,
		status,
		hours,
		formatTime(now),
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("update profile status: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return nil, ErrNotFound
	}

	row := q.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id)
	return scanProfile(row)
}

func scanProfile(s scanner) (*model.Profile, error) {
	profile := model.Profile{}
	var avatarURL sql.NullString
	var createdAt string
	var updatedAt string
	err := s.Scan(
		&profile.ID,
		&profile.Username,
		&avatarURL,
		&profile.TotalFocusHours,
		&profile.CurrentStatus,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan profile: %w", err)
	}

	if avatarURL.Valid {
		value := avatarURL.String
		profile.AvatarURL = &value
	}

	parsedCreatedAt, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse profile created_at: %w", err)
	}
	parsedUpdatedAt, err := parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse profile updated_at: %w", err)
	}
	profile.CreatedAt = parsedCreatedAt
	profile.UpdatedAt = parsedUpdatedAt
	return &profile, nil
}
