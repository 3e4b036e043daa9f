package feed

import (
	"fmt"

	"focusfriends/backend/internal/model"
)

var nudgeIcons = map[string]string{
	model.NudgeCoffeeBreak: "☕",
	model.NudgeFocusUp:     "🔥",
	model.NudgeHighFive:    "✋",
}

// NudgeIcon returns the emoji shown for a nudge type.
func NudgeIcon(kind string) string {
	if icon, ok := nudgeIcons[kind]; ok {
		return icon
	}
	return "👋"
}

func SessionEvent(session model.Session, username string) model.FeedEvent {
	if username == "" {
		username = "Someone"
	}
	minutes := session.Minutes()
	icon := "🎯"
	if model.IsDeepWork(minutes) {
		icon = "🔥"
	}
	createdAt := session.CreatedAt
	if session.EndTime != nil {
		createdAt = *session.EndTime
	}

	return model.FeedEvent{
		ID:        "session-" + session.ID,
		Kind:      model.FeedSessionComplete,
		Message:   fmt.Sprintf("%s completed %d min on %s 🎯", username, minutes, session.Subject),
		Icon:      icon,
		ActorName: username,
		CreatedAt: createdAt,
	}
}

func NudgeEvent(nudge model.Nudge, sender, receiver string) model.FeedEvent {
	if sender == "" {
		sender = "Someone"
	}
	if receiver == "" {
		receiver = "someone"
	}
	icon := NudgeIcon(nudge.Type)

	return model.FeedEvent{
		ID:        "nudge-" + nudge.ID,
		Kind:      model.FeedNudge,
		Message:   fmt.Sprintf("%s %s %s", sender, icon, receiver),
		Icon:      icon,
		ActorName: sender,
		CreatedAt: nudge.CreatedAt,
	}
}
