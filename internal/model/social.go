package model

import "time"

const (
	NudgeHighFive    = "high-five"
	NudgeFocusUp     = "focus-up"
	NudgeCoffeeBreak = "coffee-break"
)

func IsValidNudgeType(kind string) bool {
	return kind == NudgeHighFive || kind == NudgeFocusUp || kind == NudgeCoffeeBreak
}

type Nudge struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Type       string    `json:"type"`
	CreatedAt  time.Time `json:"createdAt"`
}

// NudgeView is a nudge joined with both participants' usernames.
type NudgeView struct {
	Nudge
	SenderUsername   string `json:"senderUsername"`
	ReceiverUsername string `json:"receiverUsername"`
}

type FeedEventKind string

const (
	FeedSessionComplete FeedEventKind = "session_complete"
	FeedNudge           FeedEventKind = "nudge"
	FeedUserJoined      FeedEventKind = "user_joined"
)

type FeedEvent struct {
	ID        string        `json:"id"`
	Kind      FeedEventKind `json:"kind"`
	Message   string        `json:"message"`
	Icon      string        `json:"icon"`
	ActorName string        `json:"actorName"`
	CreatedAt time.Time     `json:"createdAt"`
}

type LeaderboardEntry struct {
	UserID           string `json:"userId"`
	Username         string `json:"username"`
	TotalMinutes     int    `json:"totalMinutes"`
	DeepWorkSessions int    `json:"deepWorkSessions"`
	Rank             int    `json:"rank"`
}

type Toast struct {
	ID         string    `json:"id"`
	Icon       string    `json:"icon"`
	SenderName string    `json:"senderName"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"createdAt"`
}
