package meeting

import (
	"github.com/google/uuid"
	"github.com/thereayou/consilium/internal/models"
)

// Store — долговечное зеркало хода совещания. Пока совещание активно,
// источником истины остается сессия в памяти; записи идемпотентны
// по номеру последовательности
type Store interface {
	AppendOpinion(opinion *models.Opinion) error
	CreateDecision(decision *models.Decision) error
	UpdateMeetingStatus(meetingID uuid.UUID, status models.MeetingStatus, outcome models.MeetingOutcome, round int) error
}

// Transport доставляет исходящие сообщения живым соединениям участников.
// Доставка best-effort: сбой отправки не должен блокировать сессию,
// он проявляется позже как дисконнект участника
type Transport interface {
	SendToAgent(meetingID, agentID uuid.UUID, msgType string, data interface{})
	Broadcast(meetingID uuid.UUID, msgType string, data interface{}, exclude uuid.UUID)
}
