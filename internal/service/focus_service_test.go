package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"focusfriends/backend/internal/bus"
	"focusfriends/backend/internal/db"
	"focusfriends/backend/internal/model"
	"focusfriends/backend/internal/repository"
	"focusfriends/backend/internal/retry"
)

func newFocusTestService(t *testing.T) (*FocusService, *sql.DB) {
	t.Helper()
	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "focus.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	if _, err := db.RunMigrations(database); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	user := &model.User{ID: "u1", Email: "ann@example.com", PasswordHash: "hash", CreatedAt: now, UpdatedAt: now}
	profile := &model.Profile{ID: "u1", Username: "ann", CurrentStatus: "idle", CreatedAt: now, UpdatedAt: now}
	if err := repository.NewUserRepository(database).CreateWithProfile(context.Background(), user, profile); err != nil {
		t.Fatalf("create user: %v", err)
	}

	focus := NewFocusService(
		repository.NewSessionRepository(database),
		repository.NewProfileRepository(database),
		repository.NewPreferenceRepository(database),
		bus.New(),
		FocusOptions{
			Clock:           clockwork.NewFakeClockAt(now),
			TickInterval:    time.Second,
			DefaultDuration: 25 * time.Minute,
			Retry:           retry.Policy{Attempts: 4, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
			Logger:          zap.NewNop(),
		},
	)
	return focus, database
}

func closeFocus(t *testing.T, focus *FocusService) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := focus.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func countSessions(t *testing.T, database *sql.DB) (total, open int) {
	t.Helper()
	err := database.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN end_time IS NULL THEN 1 ELSE 0 END), 0) FROM sessions`,
	).Scan(&total, &open)
	if err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	return total, open
}

func TestStartStopRecordsOneSession(t *testing.T) {
	focus, database := newFocusTestService(t)
	ctx := context.Background()

	if _, apiErr := focus.Start(ctx, "u1", "Math"); apiErr != nil {
		t.Fatalf("start: %v", apiErr)
	}
	if _, apiErr := focus.Stop(ctx, "u1"); apiErr != nil {
		t.Fatalf("stop: %v", apiErr)
	}
	closeFocus(t, focus)

	total, open := countSessions(t, database)
	if total != 1 || open != 0 {
		t.Fatalf("sessions total=%d open=%d, want 1 ended row", total, open)
	}
}

func TestFailedProfileWriteDoesNotDuplicateSessions(t *testing.T) {
	focus, database := newFocusTestService(t)
	ctx := context.Background()

	_, err := database.Exec(`CREATE TRIGGER reject_profile_update BEFORE UPDATE ON profiles
		BEGIN SELECT RAISE(ABORT, 'database is locked'); END`)
	if err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	if _, apiErr := focus.Start(ctx, "u1", "Math"); apiErr != nil {
		t.Fatalf("start: %v", apiErr)
	}
	if _, apiErr := focus.Stop(ctx, "u1"); apiErr != nil {
		t.Fatalf("stop: %v", apiErr)
	}
	closeFocus(t, focus)

	total, _ := countSessions(t, database)
	if total != 1 {
		t.Fatalf("sessions total=%d, want exactly 1 row for one start", total)
	}
}
