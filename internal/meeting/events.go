package meeting

import (
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/consilium/internal/models"
)

// Типы исходящих сообщений транспорта
const (
	OutConnected        = "connected"
	OutOpinionRequest   = "opinion_request"
	OutConsensusRequest = "consensus_request"
	OutMeetingEvent     = "meeting_event"
)

// Подтипы meeting_event
const (
	EventAgentJoined       = "agent_joined"
	EventAgentLeft         = "agent_left"
	EventDiscussionStarted = "discussion_started"
	EventRoundStarted      = "round_started"
	EventOpinionRecorded   = "opinion_recorded"
	EventConsensusReached  = "consensus_reached"
	EventMeetingCompleted  = "meeting_completed"
)

// OpinionView — представление записанного мнения для рассылки участникам
type OpinionView struct {
	ID             uuid.UUID `json:"id"`
	AgentID        uuid.UUID `json:"agent_id"`
	AgentName      string    `json:"agent_name,omitempty"`
	RoundNumber    int       `json:"round_number"`
	SequenceNumber int       `json:"sequence_number"`
	Content        string    `json:"content"`
	IsTimeout      bool      `json:"is_timeout"`
	CreatedAt      time.Time `json:"created_at"`
}

// OpinionRequest отправляется ровно одному участнику, чья очередь говорить
type OpinionRequest struct {
	MeetingID   uuid.UUID `json:"meeting_id"`
	Topic       string    `json:"topic"`
	RoundNumber int       `json:"round_number"`
	Deadline    time.Time `json:"deadline"`
}

// ConsensusRequest рассылается всем подключенным участникам с полным
// списком мнений раунда в порядке выступлений
type ConsensusRequest struct {
	MeetingID   uuid.UUID     `json:"meeting_id"`
	RoundNumber int           `json:"round_number"`
	Opinions    []OpinionView `json:"opinions"`
	Deadline    time.Time     `json:"deadline"`
}

// DecisionView — представление решения для рассылки
type DecisionView struct {
	Content   string          `json:"content"`
	Rationale string          `json:"rationale"`
	Agreement map[string]bool `json:"agreement"`
}

// MeetingEvent — универсальный конверт событий совещания
type MeetingEvent struct {
	Event     string                `json:"event"`
	MeetingID uuid.UUID             `json:"meeting_id"`
	AgentID   *uuid.UUID            `json:"agent_id,omitempty"`
	Round     int                   `json:"round,omitempty"`
	Status    models.MeetingStatus  `json:"status,omitempty"`
	Outcome   models.MeetingOutcome `json:"outcome,omitempty"`
	Reason    string                `json:"reason,omitempty"`
	Opinion   *OpinionView          `json:"opinion,omitempty"`
	Decision  *DecisionView         `json:"decision,omitempty"`
}

// ParticipantView — слот участника в снимке состояния
type ParticipantView struct {
	AgentID   uuid.UUID `json:"agent_id"`
	AgentName string    `json:"agent_name,omitempty"`
	Connected bool      `json:"connected"`
}

// Snapshot — моментальное состояние живой сессии (для ack при подключении
// и для статусной выдачи поверх сохраненной записи)
type Snapshot struct {
	MeetingID     uuid.UUID             `json:"meeting_id"`
	Topic         string                `json:"topic"`
	Status        models.MeetingStatus  `json:"status"`
	Outcome       models.MeetingOutcome `json:"outcome,omitempty"`
	CurrentRound  int                   `json:"current_round"`
	MaxRounds     int                   `json:"max_rounds"`
	Participants  []ParticipantView     `json:"participants"`
	SpeakingOrder []uuid.UUID           `json:"speaking_order,omitempty"`
	AwaitingAgent *uuid.UUID            `json:"awaiting_agent,omitempty"`
}
