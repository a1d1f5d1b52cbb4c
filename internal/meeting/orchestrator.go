package meeting

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/consilium/internal/models"
)

// DefaultSlotTimeout — единый бюджет ожидания мнения и голоса
const DefaultSlotTimeout = 5 * time.Minute

type Config struct {
	// SlotTimeout применяется одинаково к ожиданию мнения и голоса
	SlotTimeout time.Duration
	Summarizer  Summarizer
	// OnSessionStart/OnSessionEnd зеркалируют набор живых сессий
	// (redis-индекс активных совещаний)
	OnSessionStart func(meetingID uuid.UUID)
	OnSessionEnd   func(meetingID uuid.UUID)
}

// Orchestrator держит живые сессии. Совещания независимы: каждая сессия
// крутит свой цикл, оркестратор лишь маршрутизирует команды
type Orchestrator struct {
	store     Store
	transport Transport
	cfg       Config

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

func NewOrchestrator(store Store, transport Transport, cfg Config) *Orchestrator {
	if cfg.SlotTimeout <= 0 {
		cfg.SlotTimeout = DefaultSlotTimeout
	}
	if cfg.Summarizer == nil {
		cfg.Summarizer = roundSummarizer{}
	}

	return &Orchestrator{
		store:     store,
		transport: transport,
		cfg:       cfg,
		sessions:  make(map[uuid.UUID]*Session),
	}
}

// Register создает сессию для совещания в статусе pending и запускает
// ее цикл. Повторная регистрация возвращает существующую сессию
func (o *Orchestrator) Register(meeting *models.Meeting) (*Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if session, ok := o.sessions[meeting.ID]; ok {
		return session, nil
	}

	if meeting.Status == models.StatusCompleted {
		return nil, ErrMeetingClosed
	}
	if meeting.Status != models.StatusPending {
		return nil, ErrInvalidTransition
	}

	order, err := participantOrder(meeting)
	if err != nil {
		return nil, err
	}

	names := make(map[uuid.UUID]string, len(meeting.Participants))
	for _, agent := range meeting.Participants {
		names[agent.ID] = agent.Name
	}

	session := newSession(meeting, order, names,
		o.store, o.transport, o.cfg.Summarizer, o.cfg.SlotTimeout, o.sessionEnded)

	o.sessions[meeting.ID] = session
	go session.run()

	if o.cfg.OnSessionStart != nil {
		o.cfg.OnSessionStart(meeting.ID)
	}

	return session, nil
}

// participantOrder восстанавливает порядок объявления участников
func participantOrder(meeting *models.Meeting) ([]uuid.UUID, error) {
	if meeting.ParticipantOrder != "" && meeting.ParticipantOrder != "[]" {
		var order []uuid.UUID
		if err := json.Unmarshal([]byte(meeting.ParticipantOrder), &order); err == nil && len(order) > 0 {
			return order, nil
		}
	}

	order := make([]uuid.UUID, 0, len(meeting.Participants))
	for _, agent := range meeting.Participants {
		order = append(order, agent.ID)
	}
	if len(order) == 0 {
		return nil, ErrNoParticipants
	}
	return order, nil
}

func (o *Orchestrator) sessionEnded(meetingID uuid.UUID) {
	o.mu.Lock()
	delete(o.sessions, meetingID)
	o.mu.Unlock()

	if o.cfg.OnSessionEnd != nil {
		o.cfg.OnSessionEnd(meetingID)
	}
}

func (o *Orchestrator) session(meetingID uuid.UUID) (*Session, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	session, ok := o.sessions[meetingID]
	if !ok {
		return nil, ErrMeetingNotFound
	}
	return session, nil
}

func (o *Orchestrator) Start(meetingID uuid.UUID) error {
	session, err := o.session(meetingID)
	if err != nil {
		return err
	}
	return session.Start()
}

func (o *Orchestrator) SubmitOpinion(meetingID, agentID uuid.UUID, content string) error {
	session, err := o.session(meetingID)
	if err != nil {
		return err
	}
	return session.SubmitOpinion(agentID, content)
}

func (o *Orchestrator) SubmitVote(meetingID, agentID uuid.UUID, agrees bool) error {
	session, err := o.session(meetingID)
	if err != nil {
		return err
	}
	return session.SubmitVote(agentID, agrees)
}

func (o *Orchestrator) Join(meetingID, agentID uuid.UUID) (*Snapshot, error) {
	session, err := o.session(meetingID)
	if err != nil {
		return nil, err
	}
	return session.Join(agentID)
}

func (o *Orchestrator) Leave(meetingID, agentID uuid.UUID) error {
	session, err := o.session(meetingID)
	if err != nil {
		return err
	}
	return session.Leave(agentID)
}

// Cancel принудительно завершает совещание; все ожидания отменяются
func (o *Orchestrator) Cancel(meetingID uuid.UUID) error {
	session, err := o.session(meetingID)
	if err != nil {
		return err
	}
	return session.Cancel()
}

func (o *Orchestrator) Snapshot(meetingID uuid.UUID) (*Snapshot, error) {
	session, err := o.session(meetingID)
	if err != nil {
		return nil, err
	}
	return session.Snapshot()
}

// Active возвращает идентификаторы совещаний с живыми сессиями
func (o *Orchestrator) Active() []uuid.UUID {
	o.mu.RLock()
	defer o.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(o.sessions))
	for id := range o.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown принудительно завершает все живые сессии
func (o *Orchestrator) Shutdown() {
	for _, id := range o.Active() {
		if err := o.Cancel(id); err != nil && err != ErrMeetingNotFound {
			continue
		}
	}
}
