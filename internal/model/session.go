package model

import "time"

// DeepWorkThresholdMinutes is the length a completed session must exceed to count as deep work.
const DeepWorkThresholdMinutes = 50

type Session struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"userId"`
	Subject             string     `json:"subject"`
	StartTime           time.Time  `json:"startTime"`
	EndTime             *time.Time `json:"endTime,omitempty"`
	DurationMinutes     *int       `json:"durationMinutes,omitempty"`
	IsPublicNow         bool       `json:"isPublicNow"`
	ScheduledVisibility *string    `json:"scheduledVisibility,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// Minutes returns the recorded duration, treating a missing value as zero.
func (s Session) Minutes() int {
	if s.DurationMinutes == nil {
		return 0
	}
	return *s.DurationMinutes
}

func IsDeepWork(minutes int) bool {
	return minutes > DeepWorkThresholdMinutes
}

// DurationMinutes rounds the elapsed time between start and end to whole minutes.
func DurationMinutes(start, end time.Time) int {
	elapsed := end.Sub(start)
	if elapsed <= 0 {
		return 0
	}
	return int((elapsed + 30*time.Second) / time.Minute)
}
