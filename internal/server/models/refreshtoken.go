package models

import "time"

type RefreshToken struct {
	ID        string
	ActorID   string
	Token     string
	Expires   time.Time
	CreatedAt time.Time
}
