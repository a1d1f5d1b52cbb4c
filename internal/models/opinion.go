package models

import (
	"github.com/google/uuid"
	"time"
)

type Opinion struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	MeetingID      uuid.UUID `gorm:"not null;uniqueIndex:idx_meeting_seq"`
	AgentID        uuid.UUID `gorm:"not null"`
	RoundNumber    int       `gorm:"not null"`
	SequenceNumber int       `gorm:"not null;uniqueIndex:idx_meeting_seq"`
	Content        string    `gorm:"not null"`
	IsTimeout      bool      `gorm:"not null;default:false"`
	CreatedAt      time.Time

	// Связи
	Agent   Agent   `gorm:"foreignKey:AgentID"`
	Meeting Meeting `gorm:"foreignKey:MeetingID"`
}
