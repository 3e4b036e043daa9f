package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"focusfriends/backend/internal/model"
)

type PreferenceRepository struct {
	db *sql.DB
}

func NewPreferenceRepository(db *sql.DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

func (r *PreferenceRepository) Get(ctx context.Context, userID string) (*model.TimerPreferences, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT user_id, duration_seconds, recent_subjects, updated_at
		 FROM timer_preferences
		 WHERE user_id = ?`,
		userID,
	)

	prefs := model.TimerPreferences{}
	var recent string
	var updatedAt string
	if err := row.Scan(&prefs.UserID, &prefs.DurationSeconds, &recent, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get timer preferences: %w", err)
	}

	if err := json.Unmarshal([]byte(recent), &prefs.RecentSubjects); err != nil {
		return nil, fmt.Errorf("decode recent subjects: %w", err)
	}
	if prefs.RecentSubjects == nil {
		prefs.RecentSubjects = []string{}
	}

	parsedUpdatedAt, err := parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse timer preferences updated_at: %w", err)
	}
	prefs.UpdatedAt = parsedUpdatedAt
	return &prefs, nil
}

func (r *PreferenceRepository) Upsert(ctx context.Context, prefs *model.TimerPreferences) error {
	subjects := prefs.RecentSubjects
	if subjects == nil {
		subjects = []string{}
	}
	encoded, err := json.Marshal(subjects)
	if err != nil {
		return fmt.Errorf("encode recent subjects: %w", err)
	}

	_, err = r.db.ExecContext(
		ctx,
		`INSERT INTO timer_preferences (user_id, duration_seconds, recent_subjects, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		     duration_seconds = excluded.duration_seconds,
		     recent_subjects = excluded.recent_subjects,
		     updated_at = excluded.updated_at`,
		prefs.UserID,
		prefs.DurationSeconds,
		string(encoded),
		formatTime(prefs.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert timer preferences: %w", err)
	}
	return nil
}
