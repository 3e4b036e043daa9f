package bus

import (
	"time"

	"focusfriends/backend/internal/model"
)

const (
	KindSessionInserted = "sessions.insert"
	KindSessionUpdated  = "sessions.update"
	KindNudgeInserted   = "nudges.insert"
	KindProfileUpdated  = "profiles.update"
	KindTimerStatus     = "timer.status"
	KindTimerCompleted  = "timer.completed"
)

type SessionChange struct {
	Session  model.Session `json:"session"`
	Username string        `json:"username"`
}

type NudgeCreated struct {
	Nudge model.NudgeView `json:"nudge"`
}

type ProfileChange struct {
	Profile model.Profile `json:"profile"`
}

type TimerStatusChange struct {
	UserID    string            `json:"userId"`
	Status    model.TimerStatus `json:"status"`
	Subject   *string           `json:"subject,omitempty"`
	StartedAt *time.Time        `json:"startedAt,omitempty"`
}

type TimerCompleted struct {
	UserID  string `json:"userId"`
	Subject string `json:"subject"`
	Minutes int    `json:"minutes"`
}
