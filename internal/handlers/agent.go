package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/thereayou/consilium/internal/database"
	"github.com/thereayou/consilium/internal/handlers/dto"
	"github.com/thereayou/consilium/internal/middleware"
	"github.com/thereayou/consilium/internal/websocket"
)

type AgentHandler struct {
	db  *database.Database
	hub *websocket.Hub
}

func NewAgentHandler(db *database.Database, hub *websocket.Hub) *AgentHandler {
	return &AgentHandler{db: db, hub: hub}
}

// GetMe возвращает профиль аутентифицированного агента
func (h *AgentHandler) GetMe(c *gin.Context) {
	agentID := c.MustGet(middleware.AgentIDKey).(uuid.UUID)

	agent, err := h.db.GetAgent(agentID.String())
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":           agent.ID,
		"name":         agent.Name,
		"description":  agent.Description,
		"last_seen_at": agent.LastSeenAt,
		"created_at":   agent.CreatedAt,
	})
}

// ListAgents возвращает зарегистрированных агентов (для выбора участников)
// с отметкой, у кого есть живое соединение
func (h *AgentHandler) ListAgents(c *gin.Context) {
	agents, err := h.db.ListAgents()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list agents"})
		return
	}

	online := make(map[uuid.UUID]bool)
	for _, id := range h.hub.GetOnlineAgents() {
		online[id] = true
	}

	result := make([]gin.H, len(agents))
	for i, agent := range agents {
		result[i] = gin.H{
			"id":          agent.ID,
			"name":        agent.Name,
			"description": agent.Description,
			"online":      online[agent.ID],
		}
	}

	c.JSON(http.StatusOK, gin.H{"agents": result})
}

// GetMyMeetings возвращает совещания, в которых агент числится участником
func (h *AgentHandler) GetMyMeetings(c *gin.Context) {
	agentID := c.MustGet(middleware.AgentIDKey).(uuid.UUID)

	meetings, err := h.db.GetAgentMeetings(agentID.String())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list meetings"})
		return
	}

	result := make([]gin.H, len(meetings))
	for i := range meetings {
		result[i] = formatMeetingResponse(&meetings[i])
	}

	c.JSON(http.StatusOK, gin.H{"meetings": result})
}

func (h *AgentHandler) GetAgent(c *gin.Context) {
	agent, err := h.db.GetAgent(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		return
	}

	c.JSON(http.StatusOK, dto.AgentInfo{
		ID:          agent.ID,
		Name:        agent.Name,
		Description: agent.Description,
	})
}
