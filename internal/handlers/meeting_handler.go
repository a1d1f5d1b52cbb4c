package handlers

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/consilium/internal/database"
	"github.com/thereayou/consilium/internal/handlers/dto"
	"github.com/thereayou/consilium/internal/meeting"
	"github.com/thereayou/consilium/internal/websocket"
)

// MeetingMessageHandler переводит входящие кадры транспорта в команды ядра
type MeetingMessageHandler struct {
	db   *database.Database
	hub  *websocket.Hub
	orch *meeting.Orchestrator
}

func NewMeetingMessageHandler(db *database.Database, hub *websocket.Hub, orch *meeting.Orchestrator) *MeetingMessageHandler {
	return &MeetingMessageHandler{
		db:   db,
		hub:  hub,
		orch: orch,
	}
}

func (h *MeetingMessageHandler) HandleMessage(client *websocket.Client, msg *websocket.Message) error {
	switch msg.Type {
	case websocket.TypeMeetingJoin:
		return h.handleJoin(client, msg)

	case websocket.TypeMeetingLeave:
		return h.handleLeave(client, msg)

	case websocket.TypeOpinion:
		return h.handleOpinion(client, msg)

	case websocket.TypeConsensusVote:
		return h.handleVote(client, msg)

	case websocket.TypeDirectMessage:
		return h.handleDirectMessage(client, msg)

	default:
		log.Printf("Unknown message type: %s", msg.Type)
		return websocket.ErrUnknownDirective
	}
}

// AgentDisconnected — обрыв последнего соединения агента в совещании
// приравнивается к leave; сам слот участника сохраняется
func (h *MeetingMessageHandler) AgentDisconnected(meetingID, agentID uuid.UUID) {
	if err := h.orch.Leave(meetingID, agentID); err != nil && err != meeting.ErrMeetingNotFound && err != meeting.ErrMeetingClosed {
		log.Printf("Failed to mark agent %s disconnected in meeting %s: %v", agentID, meetingID, err)
	}
}

func (h *MeetingMessageHandler) handleJoin(client *websocket.Client, msg *websocket.Message) error {
	if msg.MeetingID == nil {
		return websocket.ErrMeetingRequired
	}
	meetingID := *msg.MeetingID

	snap, err := h.orch.Join(meetingID, client.AgentID)
	if err == meeting.ErrMeetingNotFound {
		// Сессии нет: поднимаем pending-совещание из хранилища
		if err = h.registerFromStore(meetingID); err != nil {
			return err
		}
		snap, err = h.orch.Join(meetingID, client.AgentID)
	}
	if err != nil {
		return err
	}

	h.hub.JoinMeeting(client, meetingID)

	if err := client.SendMessage(websocket.TypeConnected, &meetingID, snap); err != nil {
		log.Printf("Failed to ack join for agent %s: %v", client.AgentID, err)
	}

	go h.db.UpdateLastSeen(client.AgentID.String())

	return nil
}

func (h *MeetingMessageHandler) registerFromStore(meetingID uuid.UUID) error {
	m, err := h.db.GetMeeting(meetingID.String())
	if err != nil {
		return meeting.ErrMeetingNotFound
	}

	_, err = h.orch.Register(m)
	return err
}

func (h *MeetingMessageHandler) handleLeave(client *websocket.Client, msg *websocket.Message) error {
	if msg.MeetingID == nil {
		return websocket.ErrMeetingRequired
	}
	meetingID := *msg.MeetingID

	h.hub.LeaveMeeting(client, meetingID)

	if err := h.orch.Leave(meetingID, client.AgentID); err != nil && err != meeting.ErrMeetingNotFound {
		return err
	}
	return nil
}

func (h *MeetingMessageHandler) handleOpinion(client *websocket.Client, msg *websocket.Message) error {
	if msg.MeetingID == nil {
		return websocket.ErrMeetingRequired
	}

	var payload dto.OpinionPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return err
	}

	if payload.Content == "" {
		return websocket.ErrInvalidMessage
	}

	if err := h.orch.SubmitOpinion(*msg.MeetingID, client.AgentID, payload.Content); err != nil {
		return err
	}

	go h.db.UpdateLastSeen(client.AgentID.String())

	return nil
}

func (h *MeetingMessageHandler) handleVote(client *websocket.Client, msg *websocket.Message) error {
	if msg.MeetingID == nil {
		return websocket.ErrMeetingRequired
	}

	var payload dto.VotePayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return err
	}

	return h.orch.SubmitVote(*msg.MeetingID, client.AgentID, payload.Agrees)
}

// handleDirectMessage ретранслирует адресное сообщение внутри совещания,
// не затрагивая ход раундов
func (h *MeetingMessageHandler) handleDirectMessage(client *websocket.Client, msg *websocket.Message) error {
	if msg.MeetingID == nil {
		return websocket.ErrMeetingRequired
	}
	meetingID := *msg.MeetingID

	if !client.IsInMeeting(meetingID) {
		return websocket.ErrAgentNotInRoom
	}

	var payload dto.DirectMessagePayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return err
	}

	if payload.Content == "" || payload.ToAgentID == uuid.Nil {
		return websocket.ErrInvalidMessage
	}

	h.hub.SendToAgent(meetingID, payload.ToAgentID, string(websocket.TypeDirectMessage), map[string]interface{}{
		"from_agent_id": client.AgentID,
		"content":       payload.Content,
		"sent_at":       time.Now(),
	})

	return nil
}
