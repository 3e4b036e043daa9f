package model

import "time"

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Profile struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	AvatarURL       *string   `json:"avatarUrl,omitempty"`
	TotalFocusHours float64   `json:"totalFocusHours"`
	CurrentStatus   string    `json:"currentStatus"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}
