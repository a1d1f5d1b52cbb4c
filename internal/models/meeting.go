package models

import (
	"github.com/google/uuid"
	"time"
)

// MeetingStatus определяет этап жизненного цикла совещания
type MeetingStatus string

const (
	StatusPending          MeetingStatus = "pending"
	StatusInProgress       MeetingStatus = "in_progress"
	StatusConsensusPending MeetingStatus = "consensus_pending"
	StatusCompleted        MeetingStatus = "completed"
)

// MeetingOutcome определяет итог завершенного совещания
type MeetingOutcome string

const (
	OutcomeUnset       MeetingOutcome = ""
	OutcomeConsensus   MeetingOutcome = "consensus_reached"
	OutcomeNoConsensus MeetingOutcome = "no_consensus"
)

// OrderMode определяет способ вычисления порядка выступлений
type OrderMode string

const (
	OrderFixed  OrderMode = "fixed"
	OrderRandom OrderMode = "random"
)

type Meeting struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Topic        string    `gorm:"not null"`
	MeetingType  string    `gorm:"not null;check:meeting_type IN ('user_specified','auto_generated')"`
	OrderMode    OrderMode `gorm:"not null;default:'fixed';check:order_mode IN ('fixed','random')"`
	MaxRounds    int       `gorm:"not null;default:3"`
	CurrentRound int       `gorm:"not null;default:0"`
	Status       MeetingStatus `gorm:"not null;default:'pending';check:status IN ('pending','in_progress','consensus_pending','completed')"`
	Outcome      MeetingOutcome
	CreatedBy    uuid.UUID
	CreatedAt    time.Time
	CompletedAt  *time.Time

	// Порядок объявления участников (jsonb-массив uuid); many2many его не сохраняет
	ParticipantOrder string `gorm:"type:jsonb;not null;default:'[]'"`

	// Связи
	Participants []Agent   `gorm:"many2many:meeting_participants"`
	Opinions     []Opinion `gorm:"foreignKey:MeetingID"`
	Decision     *Decision `gorm:"foreignKey:MeetingID"`
}
