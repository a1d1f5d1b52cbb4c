package server

import (
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/thereayou/consilium/internal/handlers"
	"github.com/thereayou/consilium/internal/middleware"
	"github.com/thereayou/consilium/pkg/auth"
)

func APIEndpoints(r *gin.Engine, jwtMgr *auth.JWTManager, rdb *redis.Client,
	authH *handlers.AuthHandler, agentH *handlers.AgentHandler,
	meetingH *handlers.MeetingHandler, topicH *handlers.TopicHandler,
	wsH *handlers.WebSocketHandler) {

	// Auth endpoints
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", authH.Register)
		authGroup.POST("/login", authH.Login)
		authGroup.POST("/logout", authH.Logout)
	}

	// WebSocket endpoint
	r.GET("/ws", middleware.WSAuthMiddleware(jwtMgr, rdb), wsH.HandleWebSocket)

	// API endpoints
	api := r.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(jwtMgr, rdb))
	{
		api.GET("/agents", agentH.ListAgents)
		api.GET("/agents/me", agentH.GetMe)
		api.GET("/agents/me/meetings", agentH.GetMyMeetings)
		api.GET("/agents/:id", agentH.GetAgent)

		api.POST("/meetings", meetingH.CreateMeeting)
		api.GET("/meetings", meetingH.ListMeetings)
		api.GET("/meetings/:id", meetingH.GetMeeting)
		api.POST("/meetings/:id/start", meetingH.StartDiscussion)
		api.DELETE("/meetings/:id", meetingH.CancelMeeting)
		api.GET("/meetings/:id/opinions", meetingH.GetOpinions)
		api.GET("/meetings/:id/decision", meetingH.GetDecision)

		api.GET("/decisions", meetingH.ListDecisions)

		api.GET("/topics/suggest", topicH.SuggestTopics)
	}
}
