package leaderboard

import (
	"testing"
	"time"

	"focusfriends/backend/internal/model"
)

func TestAggregateRanksByMinutes(t *testing.T) {
	rows := []Row{
		{UserID: "u1", DurationMinutes: 30},
		{UserID: "u1", DurationMinutes: 25},
		{UserID: "u2", DurationMinutes: 60},
	}
	entries := Aggregate(rows, map[string]string{"u1": "ann", "u2": "bob"})

	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	want := []model.LeaderboardEntry{
		{UserID: "u2", Username: "bob", TotalMinutes: 60, DeepWorkSessions: 1, Rank: 1},
		{UserID: "u1", Username: "ann", TotalMinutes: 55, DeepWorkSessions: 0, Rank: 2},
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, entries[i], want[i])
		}
	}
}

func TestAggregateTiesKeepInputOrder(t *testing.T) {
	rows := []Row{
		{UserID: "c", DurationMinutes: 10},
		{UserID: "a", DurationMinutes: 10},
		{UserID: "b", DurationMinutes: 10},
	}
	entries := Aggregate(rows, nil)
	for i, id := range []string{"c", "a", "b"} {
		if entries[i].UserID != id || entries[i].Rank != i+1 {
			t.Fatalf("entries = %+v, want c, a, b with ranks 1..3", entries)
		}
		if entries[i].Username != "Unknown" {
			t.Fatalf("missing names should become Unknown, got %q", entries[i].Username)
		}
	}
}

func TestDeepWorkIsStrictlyOverFifty(t *testing.T) {
	entries := Aggregate([]Row{{UserID: "u", DurationMinutes: 50}, {UserID: "u", DurationMinutes: 51}}, nil)
	if entries[0].DeepWorkSessions != 1 {
		t.Fatalf("deep work = %d, want 1", entries[0].DeepWorkSessions)
	}
}

func TestAggregateEmpty(t *testing.T) {
	if entries := Aggregate(nil, nil); len(entries) != 0 {
		t.Fatalf("entries = %+v, want none", entries)
	}
}

func TestWeekStart(t *testing.T) {
	wednesday := time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)
	if got := WeekStart(wednesday, time.Monday); !got.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("monday week start = %v", got)
	}
	if got := WeekStart(wednesday, time.Sunday); !got.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("sunday week start = %v", got)
	}
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if got := WeekStart(monday, time.Monday); !got.Equal(monday) {
		t.Errorf("week start on the first day = %v, want same midnight", got)
	}
}

func TestRowsFromSessions(t *testing.T) {
	minutes := 40
	rows := RowsFromSessions([]model.Session{{UserID: "u1", DurationMinutes: &minutes}, {UserID: "u2"}})
	if len(rows) != 2 || rows[0].DurationMinutes != 40 || rows[1].DurationMinutes != 0 {
		t.Fatalf("rows = %+v", rows)
	}
}
