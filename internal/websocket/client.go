package websocket

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Время ожидания записи
	writeWait = 10 * time.Second

	// Время ожидания pong от клиента
	pongWait = 60 * time.Second

	// Интервал отправки ping
	pingPeriod = (pongWait * 9) / 10

	// Максимальный размер сообщения
	maxMessageSize = 512 * 1024 // 512KB
)

type ClientMessageHandler interface {
	HandleMessage(client *Client, msg *Message) error
}

func NewClient(hub *Hub, conn *websocket.Conn, agentID uuid.UUID) *Client {
	return &Client{
		ID:       uuid.New(),
		AgentID:  agentID,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		Meetings: make(map[uuid.UUID]bool),
		Hub:      hub,
	}
}

// ReadPump читает сообщения от агента и передает их обработчику команд
func (c *Client) ReadPump(handler ClientMessageHandler) {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		err := c.Conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		// Личность отправителя берется из аутентифицированного соединения
		msg.AgentID = c.AgentID

		if msg.Type == TypePong || msg.Type == TypePing {
			continue
		}

		if handler != nil {
			if err := handler.HandleMessage(c, &msg); err != nil {
				log.Printf("Error handling %s from agent %s: %v", msg.Type, c.AgentID, err)
				c.SendError(err.Error())
			}
		}
	}
}

// WritePump отправляет сообщения агенту
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub закрыл канал
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			c.Conn.WriteMessage(websocket.TextMessage, message)

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) SendMessage(msgType MessageType, meetingID *uuid.UUID, data interface{}) error {
	msg := Message{
		Type:      msgType,
		MeetingID: meetingID,
		Timestamp: time.Now(),
	}

	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return err
		}
		msg.Data = jsonData
	}

	msgData, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case c.Send <- msgData:
		return nil
	default:
		return ErrClientQueueFull
	}
}

func (c *Client) SendError(errorMsg string) {
	c.SendMessage(TypeError, nil, map[string]string{
		"error": errorMsg,
	})
}

func (c *Client) IsInMeeting(meetingID uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Meetings[meetingID]
}

func (c *Client) GetMeetings() []uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	meetings := make([]uuid.UUID, 0, len(c.Meetings))
	for meetingID := range c.Meetings {
		meetings = append(meetings, meetingID)
	}
	return meetings
}
