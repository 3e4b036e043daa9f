package dashboard

import (
	"fmt"

	"focusfriends/backend/internal/bus"
	"focusfriends/backend/internal/feed"
	"focusfriends/backend/internal/model"
)

var nudgeVerbs = map[string]string{
	model.NudgeCoffeeBreak: "suggested a break for",
	model.NudgeFocusUp:     "encouraged",
	model.NudgeHighFive:    "high-fived",
}

func nudgeVerb(kind string) string {
	if verb, ok := nudgeVerbs[kind]; ok {
		return verb
	}
	return "nudged"
}

// NudgeToast builds the toast shown to the receiver of a nudge.
func NudgeToast(nudge model.NudgeView) model.Toast {
	sender := nudge.SenderUsername
	if sender == "" {
		sender = "Someone"
	}
	return model.Toast{
		Icon:       feed.NudgeIcon(nudge.Type),
		SenderName: sender,
		Message:    fmt.Sprintf("%s %s you!", sender, nudgeVerb(nudge.Type)),
	}
}

type Tone struct {
	FrequencyHz int `json:"frequencyHz"`
	DurationMs  int `json:"durationMs"`
}

type Notification struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	Subject string `json:"subject"`
	Minutes int    `json:"minutes"`
	Tone    Tone   `json:"tone"`
}

var completionTone = Tone{FrequencyHz: 880, DurationMs: 250}

func CompletionNotification(done bus.TimerCompleted) Notification {
	return Notification{
		Title:   "Focus session complete",
		Body:    "Great work! Your focus session is complete. 🎉",
		Subject: done.Subject,
		Minutes: done.Minutes,
		Tone:    completionTone,
	}
}
