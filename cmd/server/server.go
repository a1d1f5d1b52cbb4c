package server

import (
	"context"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/thereayou/consilium/internal/database"
	"github.com/thereayou/consilium/internal/handlers"
	"github.com/thereayou/consilium/internal/meeting"
	ws "github.com/thereayou/consilium/internal/websocket"
	"github.com/thereayou/consilium/pkg/auth"
	"log"
	"os"
	"time"
)

type Server struct {
	Router       *gin.Engine
	DB           *database.Database
	Redis        *redis.Client
	JWTManager   *auth.JWTManager
	Hub          *ws.Hub
	Orchestrator *meeting.Orchestrator
	AuthH        *handlers.AuthHandler
	AgentH       *handlers.AgentHandler
	MeetingH     *handlers.MeetingHandler
	TopicH       *handlers.TopicHandler
	WSH          *handlers.WebSocketHandler
}

func NewServer() *Server {
	if err := godotenv.Load(".env.local"); err != nil {
		if err := godotenv.Load(); err != nil {
			log.Println(".env not found, using environment variables")
		}
	}

	dbConn := &database.Database{}
	if err := dbConn.Connect(); err != nil {
		log.Fatalf("Postgres connect failed: %v", err)
	}

	redisOpts, err := redis.ParseURL(os.Getenv("REDIS_URL"))
	if err != nil {
		log.Fatalf("invalid REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Redis connect failed: %v", err)
	}

	jwtMgr := auth.NewJWTManager(
		os.Getenv("JWT_SECRET"),
		24*time.Hour,
	)

	hub := ws.NewHub()

	// Единый бюджет ожидания мнения и голоса
	slotTimeout := meeting.DefaultSlotTimeout
	if raw := os.Getenv("MEETING_SLOT_TIMEOUT"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			log.Fatalf("invalid MEETING_SLOT_TIMEOUT: %v", err)
		}
		slotTimeout = parsed
	}

	orch := meeting.NewOrchestrator(dbConn, hub, meeting.Config{
		SlotTimeout: slotTimeout,
		OnSessionStart: func(meetingID uuid.UUID) {
			rdb.SAdd(context.Background(), handlers.ActiveMeetingsKey, meetingID.String())
		},
		OnSessionEnd: func(meetingID uuid.UUID) {
			rdb.SRem(context.Background(), handlers.ActiveMeetingsKey, meetingID.String())
		},
	})

	authH := handlers.NewAuthHandler(dbConn, jwtMgr, rdb)
	agentH := handlers.NewAgentHandler(dbConn, hub)
	meetingH := handlers.NewMeetingHandler(dbConn, orch, rdb)
	topicH := handlers.NewTopicHandler(dbConn)

	messageH := handlers.NewMeetingMessageHandler(dbConn, hub, orch)
	hub.SetPresenceListener(messageH)
	wsH := handlers.NewWebSocketHandler(hub, messageH)

	router := gin.Default()
	APIEndpoints(router, jwtMgr, rdb, authH, agentH, meetingH, topicH, wsH)

	return &Server{
		Router:       router,
		DB:           dbConn,
		Redis:        rdb,
		JWTManager:   jwtMgr,
		Hub:          hub,
		Orchestrator: orch,
		AuthH:        authH,
		AgentH:       agentH,
		MeetingH:     meetingH,
		TopicH:       topicH,
		WSH:          wsH,
	}
}

func (s *Server) Run() {
	go s.Hub.Run()
	defer s.Hub.Stop()
	defer s.Orchestrator.Shutdown()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("Server starting on port %s", port)
	if err := s.Router.Run(":" + port); err != nil {
		log.Fatalf("Server run error: %v", err)
	}
}
