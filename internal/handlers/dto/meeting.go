package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateMeetingRequest struct {
	Topic          string   `json:"topic" binding:"required"`
	MeetingType    string   `json:"meeting_type" binding:"omitempty,oneof=user_specified auto_generated"`
	ParticipantIDs []string `json:"participant_ids" binding:"required,min=1"`
	MaxRounds      int      `json:"max_rounds" binding:"omitempty,min=1"`
	OrderMode      string   `json:"order_mode" binding:"omitempty,oneof=fixed random"`
}

// OpinionPayload структура для входящих мнений
type OpinionPayload struct {
	Content string `json:"content"`
}

// VotePayload структура для входящих голосов консенсуса
type VotePayload struct {
	Agrees bool `json:"agrees"`
}

// DirectMessagePayload структура для адресных сообщений между агентами
type DirectMessagePayload struct {
	ToAgentID uuid.UUID `json:"to_agent_id"`
	Content   string    `json:"content"`
}

// OpinionResponse структура для исходящих записей мнений
type OpinionResponse struct {
	ID             uuid.UUID `json:"id"`
	MeetingID      uuid.UUID `json:"meeting_id"`
	AgentID        uuid.UUID `json:"agent_id"`
	RoundNumber    int       `json:"round_number"`
	SequenceNumber int       `json:"sequence_number"`
	Content        string    `json:"content"`
	IsTimeout      bool      `json:"is_timeout"`
	CreatedAt      time.Time `json:"created_at"`
	Agent          AgentInfo `json:"agent"`
}

type AgentInfo struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
}
