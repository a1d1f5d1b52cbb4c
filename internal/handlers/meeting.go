package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/thereayou/consilium/internal/database"
	"github.com/thereayou/consilium/internal/handlers/dto"
	"github.com/thereayou/consilium/internal/meeting"
	"github.com/thereayou/consilium/internal/middleware"
	"github.com/thereayou/consilium/internal/models"
)

// ActiveMeetingsKey — redis-набор совещаний с живыми сессиями
const ActiveMeetingsKey = "meetings:active"

type MeetingHandler struct {
	db    *database.Database
	orch  *meeting.Orchestrator
	redis *redis.Client
}

func NewMeetingHandler(db *database.Database, orch *meeting.Orchestrator, rdb *redis.Client) *MeetingHandler {
	return &MeetingHandler{db: db, orch: orch, redis: rdb}
}

// CreateMeeting создает совещание и поднимает для него сессию
func (h *MeetingHandler) CreateMeeting(c *gin.Context) {
	agentID := c.MustGet(middleware.AgentIDKey).(uuid.UUID)

	var req dto.CreateMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	meetingType := req.MeetingType
	if meetingType == "" {
		meetingType = "user_specified"
	}

	maxRounds := req.MaxRounds
	if maxRounds == 0 {
		maxRounds = 3
	}

	orderMode := models.OrderMode(req.OrderMode)
	if orderMode == "" {
		orderMode = models.OrderFixed
	}

	participants, err := h.db.GetAgentsByIDs(req.ParticipantIDs)
	if err != nil || len(participants) != len(req.ParticipantIDs) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown participant id"})
		return
	}

	orderJSON, _ := json.Marshal(req.ParticipantIDs)

	m := &models.Meeting{
		Topic:            req.Topic,
		MeetingType:      meetingType,
		OrderMode:        orderMode,
		MaxRounds:        maxRounds,
		Status:           models.StatusPending,
		CreatedBy:        agentID,
		CreatedAt:        time.Now(),
		ParticipantOrder: string(orderJSON),
		Participants:     participants,
	}

	if err := h.db.CreateMeeting(m); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create meeting"})
		return
	}

	if _, err := h.orch.Register(m); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register meeting session"})
		return
	}

	c.JSON(http.StatusCreated, formatMeetingResponse(m))
}

// StartDiscussion запускает первый раунд обсуждения
func (h *MeetingHandler) StartDiscussion(c *gin.Context) {
	meetingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid meeting id"})
		return
	}

	startErr := h.orch.Start(meetingID)
	if startErr == meeting.ErrMeetingNotFound {
		// После рестарта pending-совещание поднимается из хранилища
		m, dbErr := h.db.GetMeeting(meetingID.String())
		if dbErr != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
			return
		}
		if _, regErr := h.orch.Register(m); regErr != nil {
			c.JSON(meetingErrorStatus(regErr), gin.H{"error": regErr.Error()})
			return
		}
		startErr = h.orch.Start(meetingID)
	}

	if startErr != nil {
		c.JSON(meetingErrorStatus(startErr), gin.H{"error": startErr.Error()})
		return
	}

	snap, _ := h.orch.Snapshot(meetingID)
	c.JSON(http.StatusOK, gin.H{"status": "started", "meeting": snap})
}

// GetMeeting возвращает сохраненную запись, дополненную живым снимком сессии
func (h *MeetingHandler) GetMeeting(c *gin.Context) {
	meetingID := c.Param("id")

	m, err := h.db.GetMeeting(meetingID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
		return
	}

	response := formatMeetingResponse(m)

	if id, err := uuid.Parse(meetingID); err == nil {
		if snap, err := h.orch.Snapshot(id); err == nil {
			response["live"] = snap
		}
	}

	c.JSON(http.StatusOK, response)
}

// ListMeetings возвращает совещания с опциональным фильтром по статусу;
// живые помечаются по redis-набору активных сессий
func (h *MeetingHandler) ListMeetings(c *gin.Context) {
	status := c.Query("status")

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	meetings, err := h.db.ListMeetings(status, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list meetings"})
		return
	}

	active := make(map[string]bool)
	if ids, err := h.redis.SMembers(context.Background(), ActiveMeetingsKey).Result(); err == nil {
		for _, id := range ids {
			active[id] = true
		}
	}

	result := make([]gin.H, len(meetings))
	for i := range meetings {
		item := formatMeetingResponse(&meetings[i])
		item["active"] = active[meetings[i].ID.String()]
		result[i] = item
	}

	c.JSON(http.StatusOK, gin.H{"meetings": result})
}

// CancelMeeting принудительно завершает живую сессию и удаляет запись
func (h *MeetingHandler) CancelMeeting(c *gin.Context) {
	meetingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid meeting id"})
		return
	}

	if err := h.orch.Cancel(meetingID); err != nil && err != meeting.ErrMeetingNotFound {
		c.JSON(meetingErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	if err := h.db.DeleteMeeting(meetingID.String()); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
		return
	}

	c.Status(http.StatusNoContent)
}

// GetOpinions возвращает записанные мнения совещания в порядке номеров
func (h *MeetingHandler) GetOpinions(c *gin.Context) {
	meetingID := c.Param("id")

	if _, err := h.db.GetMeeting(meetingID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
		return
	}

	round := 0
	if r := c.Query("round"); r != "" {
		if parsed, err := strconv.Atoi(r); err == nil && parsed > 0 {
			round = parsed
		}
	}

	opinions, err := h.db.GetMeetingOpinions(meetingID, round)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get opinions"})
		return
	}

	result := make([]dto.OpinionResponse, len(opinions))
	for i, op := range opinions {
		result[i] = formatOpinionResponse(&op)
	}

	c.JSON(http.StatusOK, gin.H{"opinions": result})
}

// GetDecision возвращает решение совещания, если консенсус был достигнут
func (h *MeetingHandler) GetDecision(c *gin.Context) {
	meetingID := c.Param("id")

	decision, err := h.db.GetMeetingDecision(meetingID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no decision for this meeting"})
		return
	}

	c.JSON(http.StatusOK, formatDecisionResponse(decision))
}

// ListDecisions возвращает последние решения по всем совещаниям
func (h *MeetingHandler) ListDecisions(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	decisions, err := h.db.ListDecisions(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list decisions"})
		return
	}

	result := make([]gin.H, len(decisions))
	for i := range decisions {
		result[i] = formatDecisionResponse(&decisions[i])
	}

	c.JSON(http.StatusOK, gin.H{"decisions": result})
}

func meetingErrorStatus(err error) int {
	switch err {
	case meeting.ErrMeetingNotFound:
		return http.StatusNotFound
	case meeting.ErrUnknownParticipant:
		return http.StatusForbidden
	case meeting.ErrInvalidTransition, meeting.ErrStaleSubmission,
		meeting.ErrNoParticipants, meeting.ErrMeetingClosed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func formatMeetingResponse(m *models.Meeting) gin.H {
	participants := make([]dto.AgentInfo, len(m.Participants))
	for i, agent := range m.Participants {
		participants[i] = dto.AgentInfo{
			ID:          agent.ID,
			Name:        agent.Name,
			Description: agent.Description,
		}
	}

	response := gin.H{
		"id":            m.ID,
		"topic":         m.Topic,
		"meeting_type":  m.MeetingType,
		"order_mode":    m.OrderMode,
		"max_rounds":    m.MaxRounds,
		"current_round": m.CurrentRound,
		"status":        m.Status,
		"created_by":    m.CreatedBy,
		"created_at":    m.CreatedAt,
		"participants":  participants,
	}

	if m.Outcome != models.OutcomeUnset {
		response["outcome"] = m.Outcome
	}
	if m.CompletedAt != nil {
		response["completed_at"] = m.CompletedAt
	}
	if m.Decision != nil {
		response["decision"] = formatDecisionResponse(m.Decision)
	}

	return response
}

func formatOpinionResponse(op *models.Opinion) dto.OpinionResponse {
	return dto.OpinionResponse{
		ID:             op.ID,
		MeetingID:      op.MeetingID,
		AgentID:        op.AgentID,
		RoundNumber:    op.RoundNumber,
		SequenceNumber: op.SequenceNumber,
		Content:        op.Content,
		IsTimeout:      op.IsTimeout,
		CreatedAt:      op.CreatedAt,
		Agent: dto.AgentInfo{
			ID:          op.Agent.ID,
			Name:        op.Agent.Name,
			Description: op.Agent.Description,
		},
	}
}

func formatDecisionResponse(d *models.Decision) gin.H {
	agreement := make(map[string]bool)
	json.Unmarshal([]byte(d.Agreement), &agreement)

	var opinionIDs []uuid.UUID
	json.Unmarshal([]byte(d.OpinionIDs), &opinionIDs)

	return gin.H{
		"id":          d.ID,
		"meeting_id":  d.MeetingID,
		"content":     d.Content,
		"rationale":   d.Rationale,
		"agreement":   agreement,
		"opinion_ids": opinionIDs,
		"created_at":  d.CreatedAt,
	}
}
