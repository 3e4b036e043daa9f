package model

import "time"

type TimerStatus string

const (
	TimerIdle    TimerStatus = "idle"
	TimerRunning TimerStatus = "running"
	TimerPaused  TimerStatus = "paused"
)

const (
	DefaultFocusDurationSeconds = 25 * 60
	MaxRecentSubjects           = 8
	DefaultSubject              = "Focus session"
)

var DefaultRecentSubjects = []string{
	"Compiler Design",
	"Data Structures",
	"Final Year Project",
	"Web Development",
}

type TimerState struct {
	Status         TimerStatus `json:"status"`
	TimeRemaining  int         `json:"timeRemaining"`
	Duration       int         `json:"duration"`
	Subject        string      `json:"subject"`
	SessionID      *string     `json:"sessionId,omitempty"`
	StartedAt      *time.Time  `json:"startedAt,omitempty"`
	RecentSubjects []string    `json:"recentSubjects"`
}

// TimerPreferences is the part of TimerState that outlives a process.
type TimerPreferences struct {
	UserID          string    `json:"userId"`
	DurationSeconds int       `json:"durationSeconds"`
	RecentSubjects  []string  `json:"recentSubjects"`
	UpdatedAt       time.Time `json:"updatedAt"`
}
