package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// MessageType определяет типы сообщений протокола
type MessageType string

const (
	// Системные типы
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"

	// Входящие команды агентов
	TypeOpinion       MessageType = "opinion"
	TypeConsensusVote MessageType = "consensus_vote"
	TypeDirectMessage MessageType = "direct_message"
	TypeMeetingJoin   MessageType = "meeting_join"
	TypeMeetingLeave  MessageType = "meeting_leave"

	// Исходящие сообщения ядра
	TypeConnected        MessageType = "connected"
	TypeOpinionRequest   MessageType = "opinion_request"
	TypeConsensusRequest MessageType = "consensus_request"
	TypeMeetingEvent     MessageType = "meeting_event"
	TypeError            MessageType = "error"
)

type Message struct {
	Type      MessageType     `json:"type"`
	MeetingID *uuid.UUID      `json:"meeting_id,omitempty"`
	AgentID   uuid.UUID       `json:"agent_id"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type Client struct {
	ID       uuid.UUID
	AgentID  uuid.UUID
	Conn     *websocket.Conn
	Send     chan []byte
	Meetings map[uuid.UUID]bool
	Hub      *Hub
	mu       sync.RWMutex
}

// PresenceListener получает уведомление, когда у агента пропало последнее
// живое соединение в совещании (обрыв транспорта приравнивается к leave)
type PresenceListener interface {
	AgentDisconnected(meetingID, agentID uuid.UUID)
}

type Hub struct {
	clients map[uuid.UUID]*Client

	// Соединения по AgentID (агент может держать несколько соединений)
	agentClients map[uuid.UUID]map[uuid.UUID]*Client

	// Соединения по совещаниям
	meetings map[uuid.UUID]map[uuid.UUID]*Client

	// Каналы для регистрации/отмены регистрации
	register   chan *Client
	unregister chan *Client

	presence PresenceListener

	mu sync.RWMutex

	// Контекст для graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub создает новый Hub
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:      make(map[uuid.UUID]*Client),
		agentClients: make(map[uuid.UUID]map[uuid.UUID]*Client),
		meetings:     make(map[uuid.UUID]map[uuid.UUID]*Client),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// SetPresenceListener подключает ядро к уведомлениям об обрывах
func (h *Hub) SetPresenceListener(listener PresenceListener) {
	h.mu.Lock()
	h.presence = listener
	h.mu.Unlock()
}

// Run запускает hub
func (h *Hub) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ticker.C:
			h.ping()
		}
	}
}

// Stop останавливает hub
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.Send)
		if client.Conn != nil {
			client.Conn.Close()
		}
	}
}

// Register регистрирует нового клиента
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister отменяет регистрацию клиента
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client

	if _, ok := h.agentClients[client.AgentID]; !ok {
		h.agentClients[client.AgentID] = make(map[uuid.UUID]*Client)
	}
	h.agentClients[client.AgentID][client.ID] = client

	log.Printf("Client registered: %s (Agent: %s)", client.ID, client.AgentID)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()

	var dropped []uuid.UUID

	if _, ok := h.clients[client.ID]; ok {
		// Убираем из всех совещаний; если это было последнее соединение
		// агента в совещании, его присутствие там гаснет
		for meetingID := range client.Meetings {
			h.removeFromMeetingUnsafe(client, meetingID)
			if !h.agentPresentUnsafe(meetingID, client.AgentID) {
				dropped = append(dropped, meetingID)
			}
		}

		if agentClients, ok := h.agentClients[client.AgentID]; ok {
			delete(agentClients, client.ID)
			if len(agentClients) == 0 {
				delete(h.agentClients, client.AgentID)
			}
		}

		delete(h.clients, client.ID)
		close(client.Send)

		log.Printf("Client unregistered: %s (Agent: %s)", client.ID, client.AgentID)
	}

	listener := h.presence
	h.mu.Unlock()

	if listener != nil {
		for _, meetingID := range dropped {
			go listener.AgentDisconnected(meetingID, client.AgentID)
		}
	}
}

// JoinMeeting привязывает соединение клиента к совещанию
func (h *Hub) JoinMeeting(client *Client, meetingID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.meetings[meetingID]; !ok {
		h.meetings[meetingID] = make(map[uuid.UUID]*Client)
	}

	h.meetings[meetingID][client.ID] = client
	client.mu.Lock()
	client.Meetings[meetingID] = true
	client.mu.Unlock()
}

// LeaveMeeting отвязывает соединение клиента от совещания
func (h *Hub) LeaveMeeting(client *Client, meetingID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeFromMeetingUnsafe(client, meetingID)
}

func (h *Hub) removeFromMeetingUnsafe(client *Client, meetingID uuid.UUID) {
	if meeting, ok := h.meetings[meetingID]; ok {
		if _, ok := meeting[client.ID]; ok {
			delete(meeting, client.ID)
			client.mu.Lock()
			delete(client.Meetings, meetingID)
			client.mu.Unlock()

			if len(meeting) == 0 {
				delete(h.meetings, meetingID)
			}
		}
	}
}

func (h *Hub) agentPresentUnsafe(meetingID, agentID uuid.UUID) bool {
	if meeting, ok := h.meetings[meetingID]; ok {
		for _, c := range meeting {
			if c.AgentID == agentID {
				return true
			}
		}
	}
	return false
}

// SendToAgent доставляет сообщение ядра всем соединениям агента в совещании
func (h *Hub) SendToAgent(meetingID, agentID uuid.UUID, msgType string, data interface{}) {
	payload, err := h.envelope(meetingID, msgType, data)
	if err != nil {
		log.Printf("Failed to marshal %s for agent %s: %v", msgType, agentID, err)
		return
	}

	h.mu.RLock()
	var stale []*Client
	if meeting, ok := h.meetings[meetingID]; ok {
		for _, client := range meeting {
			if client.AgentID != agentID {
				continue
			}
			select {
			case client.Send <- payload:
			default:
				log.Printf("Client %s send channel full", client.ID)
				stale = append(stale, client)
			}
		}
	}
	h.mu.RUnlock()

	h.dropClients(stale)
}

// Broadcast рассылает сообщение ядра всем соединениям совещания, кроме
// соединений исключенного агента. Доставка best-effort: сбой одного
// соединения не прерывает рассылку остальным
func (h *Hub) Broadcast(meetingID uuid.UUID, msgType string, data interface{}, exclude uuid.UUID) {
	payload, err := h.envelope(meetingID, msgType, data)
	if err != nil {
		log.Printf("Failed to marshal %s for meeting %s: %v", msgType, meetingID, err)
		return
	}

	h.mu.RLock()
	var stale []*Client
	if meeting, ok := h.meetings[meetingID]; ok {
		for _, client := range meeting {
			if exclude != uuid.Nil && client.AgentID == exclude {
				continue
			}
			select {
			case client.Send <- payload:
			default:
				log.Printf("Client %s send channel full", client.ID)
				stale = append(stale, client)
			}
		}
	}
	h.mu.RUnlock()

	h.dropClients(stale)
}

// dropClients снимает с учета соединения с переполненной очередью;
// их пропажу ядро увидит как дисконнект соответствующего агента
func (h *Hub) dropClients(clients []*Client) {
	for _, client := range clients {
		client := client
		go func() {
			select {
			case h.unregister <- client:
			case <-h.ctx.Done():
			}
		}()
	}
}

func (h *Hub) envelope(meetingID uuid.UUID, msgType string, data interface{}) ([]byte, error) {
	msg := Message{
		Type:      MessageType(msgType),
		MeetingID: &meetingID,
		Timestamp: time.Now(),
	}

	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = raw
	}

	return json.Marshal(msg)
}

func (h *Hub) ping() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	msg := Message{
		Type:      TypePing,
		Timestamp: time.Now(),
	}

	if data, err := json.Marshal(msg); err == nil {
		for _, client := range h.clients {
			select {
			case client.Send <- data:
			default:
			}
		}
	}
}

// GetMeetingAgents возвращает агентов с живыми соединениями в совещании
func (h *Hub) GetMeetingAgents(meetingID uuid.UUID) []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	agentMap := make(map[uuid.UUID]bool)
	if meeting, ok := h.meetings[meetingID]; ok {
		for _, client := range meeting {
			agentMap[client.AgentID] = true
		}
	}

	agents := make([]uuid.UUID, 0, len(agentMap))
	for agentID := range agentMap {
		agents = append(agents, agentID)
	}
	return agents
}

// GetOnlineAgents возвращает агентов, имеющих хотя бы одно соединение
func (h *Hub) GetOnlineAgents() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	agents := make([]uuid.UUID, 0, len(h.agentClients))
	for agentID := range h.agentClients {
		agents = append(agents, agentID)
	}
	return agents
}
