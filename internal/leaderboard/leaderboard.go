package leaderboard

import (
	"sort"
	"time"

	"focusfriends/backend/internal/model"
)

// Row is one completed session as the leaderboard sees it.
type Row struct {
	UserID          string
	DurationMinutes int
}

// Aggregate totals minutes per user and ranks users by total, highest
// first. Users with equal totals keep the order in which they first appear
// in rows.
func Aggregate(rows []Row, names map[string]string) []model.LeaderboardEntry {
	entries := make([]model.LeaderboardEntry, 0)
	index := make(map[string]int)
	for _, row := range rows {
		i, ok := index[row.UserID]
		if !ok {
			i = len(entries)
			index[row.UserID] = i
			entries = append(entries, model.LeaderboardEntry{UserID: row.UserID})
		}
		entries[i].TotalMinutes += row.DurationMinutes
		if model.IsDeepWork(row.DurationMinutes) {
			entries[i].DeepWorkSessions++
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalMinutes > entries[j].TotalMinutes
	})

	for i := range entries {
		entries[i].Rank = i + 1
		entries[i].Username = "Unknown"
		if name, ok := names[entries[i].UserID]; ok && name != "" {
			entries[i].Username = name
		}
	}
	return entries
}

// RowsFromSessions keeps the session order.
func RowsFromSessions(sessions []model.Session) []Row {
	rows := make([]Row, 0, len(sessions))
	for _, session := range sessions {
		rows = append(rows, Row{UserID: session.UserID, DurationMinutes: session.Minutes()})
	}
	return rows
}

// WeekStart returns midnight at the start of the week containing now, in
// now's location.
func WeekStart(now time.Time, firstDay time.Weekday) time.Time {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	back := (int(midnight.Weekday()) - int(firstDay) + 7) % 7
	return midnight.AddDate(0, 0, -back)
}
