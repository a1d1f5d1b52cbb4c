package models

import (
	"github.com/google/uuid"
	"time"
)

// Decision создается только при единогласном консенсусе, не более одного на совещание
type Decision struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	MeetingID uuid.UUID `gorm:"not null;uniqueIndex"`
	Content   string    `gorm:"not null"`
	Rationale string    `gorm:"not null"`
	// Карта agent_id -> agrees (jsonb)
	Agreement string `gorm:"type:jsonb;not null"`
	// Идентификаторы мнений раунда, на которых основано решение (jsonb-массив)
	OpinionIDs string `gorm:"type:jsonb;not null;default:'[]'"`
	CreatedAt  time.Time

	// Связи
	Meeting Meeting `gorm:"foreignKey:MeetingID"`
}
