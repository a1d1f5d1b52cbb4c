package models

import (
	"github.com/google/uuid"
	"time"
)

type Agent struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name         string    `gorm:"uniqueIndex;not null"`
	Description  string
	PasswordHash string `gorm:"not null"`
	LastSeenAt   time.Time
	CreatedAt    time.Time

	// Связи
	Meetings []Meeting `gorm:"many2many:meeting_participants"`
}
