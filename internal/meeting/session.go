package meeting

import (
	"encoding/json"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/consilium/internal/models"
)

type commandKind int

const (
	cmdStart commandKind = iota
	cmdSubmitOpinion
	cmdSubmitVote
	cmdJoin
	cmdLeave
	cmdCancel
	cmdSnapshot
)

type command struct {
	kind    commandKind
	agentID uuid.UUID
	content string
	agrees  bool
	reply   chan cmdResult
}

type cmdResult struct {
	err  error
	snap *Snapshot
}

// timerFired приходит из time.AfterFunc в тот же цикл, что и команды:
// дедлайны конкурируют с реальными сабмитами за один секвенсор
type timerFired struct {
	round int
	slot  int       // индекс слота мнения в порядке выступлений
	vote  bool      // таймер голосования, а не мнения
	agent uuid.UUID // участник, чей голос истек
}

type participantSlot struct {
	agentID   uuid.UUID
	name      string
	connected bool
	joinedAt  time.Time
}

type roundState struct {
	number       int
	order        []uuid.UUID
	cursor       int
	records      []*models.Opinion
	opinionTimer *time.Timer
	agreement    map[uuid.UUID]bool
	voteTimers   map[uuid.UUID]*time.Timer
}

// Session — авторитетный агрегат одного совещания. Все переходы состояния,
// сабмиты и срабатывания таймеров сериализуются одной горутиной run,
// что и дает гарантии порядка номеров последовательности
type Session struct {
	id        uuid.UUID
	topic     string
	maxRounds int
	timeout   time.Duration

	store     Store
	transport Transport
	summarize Summarizer
	onEnd     func(meetingID uuid.UUID)

	commands chan command
	timers   chan timerFired
	done     chan struct{}

	// Состояние ниже принадлежит только горутине run
	status       models.MeetingStatus
	outcome      models.MeetingOutcome
	currentRound int
	slots        []*participantSlot
	scheduler    *turnScheduler
	round        *roundState
	nextSeq      int
	closed       bool
}

func newSession(m *models.Meeting, order []uuid.UUID, names map[uuid.UUID]string,
	store Store, transport Transport, summarize Summarizer,
	timeout time.Duration, onEnd func(uuid.UUID)) *Session {

	slots := make([]*participantSlot, 0, len(order))
	for _, agentID := range order {
		slots = append(slots, &participantSlot{
			agentID: agentID,
			name:    names[agentID],
		})
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	return &Session{
		id:        m.ID,
		topic:     m.Topic,
		maxRounds: m.MaxRounds,
		timeout:   timeout,
		store:     store,
		transport: transport,
		summarize: summarize,
		onEnd:     onEnd,
		commands:  make(chan command),
		timers:    make(chan timerFired),
		done:      make(chan struct{}),
		status:    models.StatusPending,
		slots:     slots,
		scheduler: newTurnScheduler(m.OrderMode, order, rng),
		nextSeq:   1,
	}
}

func (s *Session) run() {
	for {
		select {
		case cmd := <-s.commands:
			s.handleCommand(cmd)

		case tf := <-s.timers:
			s.handleTimer(tf)

		case <-s.done:
			return
		}
	}
}

// exec передает команду в цикл сессии и ждет результата
func (s *Session) exec(cmd command) cmdResult {
	cmd.reply = make(chan cmdResult, 1)

	select {
	case s.commands <- cmd:
	case <-s.done:
		return cmdResult{err: ErrMeetingClosed}
	}

	select {
	case res := <-cmd.reply:
		return res
	case <-s.done:
		// Команда могла быть обработана прямо перед закрытием
		select {
		case res := <-cmd.reply:
			return res
		default:
			return cmdResult{err: ErrMeetingClosed}
		}
	}
}

func (s *Session) Start() error {
	return s.exec(command{kind: cmdStart}).err
}

func (s *Session) SubmitOpinion(agentID uuid.UUID, content string) error {
	err := s.exec(command{kind: cmdSubmitOpinion, agentID: agentID, content: content}).err
	if err == ErrMeetingClosed {
		// Все слоты завершенного совещания разрешены
		return ErrStaleSubmission
	}
	return err
}

func (s *Session) SubmitVote(agentID uuid.UUID, agrees bool) error {
	err := s.exec(command{kind: cmdSubmitVote, agentID: agentID, agrees: agrees}).err
	if err == ErrMeetingClosed {
		return ErrStaleSubmission
	}
	return err
}

// Join активирует слот участника и возвращает снимок состояния для ack
func (s *Session) Join(agentID uuid.UUID) (*Snapshot, error) {
	res := s.exec(command{kind: cmdJoin, agentID: agentID})
	return res.snap, res.err
}

func (s *Session) Leave(agentID uuid.UUID) error {
	return s.exec(command{kind: cmdLeave, agentID: agentID}).err
}

// Cancel принудительно завершает совещание с итогом no_consensus
func (s *Session) Cancel() error {
	return s.exec(command{kind: cmdCancel}).err
}

func (s *Session) Snapshot() (*Snapshot, error) {
	res := s.exec(command{kind: cmdSnapshot})
	return res.snap, res.err
}

func (s *Session) handleCommand(cmd command) {
	var res cmdResult

	switch cmd.kind {
	case cmdStart:
		res.err = s.start()
	case cmdSubmitOpinion:
		res.err = s.submitOpinion(cmd.agentID, cmd.content)
	case cmdSubmitVote:
		res.err = s.submitVote(cmd.agentID, cmd.agrees)
	case cmdJoin:
		res.snap, res.err = s.join(cmd.agentID)
	case cmdLeave:
		res.err = s.leave(cmd.agentID)
	case cmdCancel:
		res.err = s.cancel()
	case cmdSnapshot:
		res.snap = s.snapshot()
	}

	cmd.reply <- res

	if s.status == models.StatusCompleted && !s.closed {
		s.shutdown()
	}
}

func (s *Session) handleTimer(tf timerFired) {
	if tf.vote {
		s.voteTimedOut(tf)
	} else {
		s.opinionTimedOut(tf)
	}

	if s.status == models.StatusCompleted && !s.closed {
		s.shutdown()
	}
}

// start: pending -> in_progress, требуется хотя бы один подключенный участник
func (s *Session) start() error {
	if s.status != models.StatusPending {
		return ErrInvalidTransition
	}

	if s.connectedCount() == 0 {
		return ErrNoParticipants
	}

	s.status = models.StatusInProgress
	s.currentRound = 1
	s.persistStatus()

	s.broadcastEvent(MeetingEvent{
		Event:     EventDiscussionStarted,
		MeetingID: s.id,
		Round:     s.currentRound,
		Status:    s.status,
	})

	s.beginRound()
	return nil
}

// beginRound замораживает порядок выступлений и запрашивает первое мнение
func (s *Session) beginRound() {
	s.round = &roundState{
		number: s.currentRound,
		order:  s.scheduler.orderFor(s.currentRound),
	}

	s.broadcastEvent(MeetingEvent{
		Event:     EventRoundStarted,
		MeetingID: s.id,
		Round:     s.currentRound,
		Status:    s.status,
	})

	s.requestOpinion()
}

// requestOpinion адресует запрос текущему слоту и взводит его дедлайн.
// Отключенному участнику запрос не дойдет, но таймер идет всё равно:
// слот закроется таймаутом, не блокируя группу
func (s *Session) requestOpinion() {
	agentID := s.round.order[s.round.cursor]
	deadline := time.Now().Add(s.timeout)

	s.transport.SendToAgent(s.id, agentID, OutOpinionRequest, OpinionRequest{
		MeetingID:   s.id,
		Topic:       s.topic,
		RoundNumber: s.round.number,
		Deadline:    deadline,
	})

	round := s.round.number
	slot := s.round.cursor
	s.round.opinionTimer = time.AfterFunc(s.timeout, func() {
		s.postTimer(timerFired{round: round, slot: slot})
	})
}

func (s *Session) postTimer(tf timerFired) {
	select {
	case s.timers <- tf:
	case <-s.done:
	}
}

func (s *Session) submitOpinion(agentID uuid.UUID, content string) error {
	idx := s.slotIndex(agentID)
	if idx < 0 {
		return ErrUnknownParticipant
	}

	switch s.status {
	case models.StatusPending:
		return ErrInvalidTransition
	case models.StatusConsensusPending:
		// Все слоты раунда уже закрыты
		return ErrStaleSubmission
	}

	pos := s.orderIndex(agentID)
	switch {
	case pos < s.round.cursor:
		// Слот этого участника уже разрешен (реальной записью или таймаутом)
		return ErrStaleSubmission
	case pos > s.round.cursor:
		// Очередь до участника еще не дошла
		return ErrInvalidTransition
	}

	s.round.opinionTimer.Stop()
	s.commitOpinion(agentID, content, false)
	return nil
}

func (s *Session) opinionTimedOut(tf timerFired) {
	if s.status != models.StatusInProgress || s.round == nil {
		return
	}
	if tf.round != s.round.number || tf.slot != s.round.cursor {
		// Устаревший таймер: слот успел разрешиться
		return
	}

	agentID := s.round.order[s.round.cursor]
	log.Printf("Meeting %s: agent %s timed out in round %d", s.id, agentID, s.round.number)
	s.commitOpinion(agentID, TimeoutContent, true)
}

// commitOpinion фиксирует запись мнения (реальную или таймаутную),
// присваивает номер последовательности и продвигает курсор
func (s *Session) commitOpinion(agentID uuid.UUID, content string, isTimeout bool) {
	opinion := &models.Opinion{
		ID:             uuid.New(),
		MeetingID:      s.id,
		AgentID:        agentID,
		RoundNumber:    s.round.number,
		SequenceNumber: s.nextSeq,
		Content:        content,
		IsTimeout:      isTimeout,
		CreatedAt:      time.Now(),
	}
	s.nextSeq++
	s.round.records = append(s.round.records, opinion)

	if err := s.store.AppendOpinion(opinion); err != nil {
		log.Printf("Meeting %s: failed to persist opinion %d: %v", s.id, opinion.SequenceNumber, err)
	}

	view := s.opinionView(opinion)
	s.broadcastEvent(MeetingEvent{
		Event:     EventOpinionRecorded,
		MeetingID: s.id,
		AgentID:   &agentID,
		Round:     s.round.number,
		Status:    s.status,
		Opinion:   &view,
	})

	s.round.cursor++
	if s.round.cursor == len(s.round.order) {
		s.enterConsensus()
	} else {
		s.requestOpinion()
	}
}

// enterConsensus: in_progress -> consensus_pending, рассылка мнений раунда
// и взвод индивидуальных таймеров голосования
func (s *Session) enterConsensus() {
	s.status = models.StatusConsensusPending
	s.persistStatus()

	deadline := time.Now().Add(s.timeout)
	views := make([]OpinionView, 0, len(s.round.records))
	for _, op := range s.round.records {
		views = append(views, s.opinionView(op))
	}

	s.transport.Broadcast(s.id, OutConsensusRequest, ConsensusRequest{
		MeetingID:   s.id,
		RoundNumber: s.round.number,
		Opinions:    views,
		Deadline:    deadline,
	}, uuid.Nil)

	s.round.agreement = make(map[uuid.UUID]bool, len(s.round.order))
	s.round.voteTimers = make(map[uuid.UUID]*time.Timer, len(s.round.order))

	round := s.round.number
	for _, agentID := range s.round.order {
		agentID := agentID
		s.round.voteTimers[agentID] = time.AfterFunc(s.timeout, func() {
			s.postTimer(timerFired{round: round, vote: true, agent: agentID})
		})
	}
}

func (s *Session) submitVote(agentID uuid.UUID, agrees bool) error {
	if s.slotIndex(agentID) < 0 {
		return ErrUnknownParticipant
	}

	if s.status != models.StatusConsensusPending {
		if s.status == models.StatusInProgress && s.currentRound > 1 {
			// Предыдущий раунд уже разрешен: запоздалый голос отклоняется
			return ErrStaleSubmission
		}
		return ErrInvalidTransition
	}

	if _, voted := s.round.agreement[agentID]; voted {
		return ErrStaleSubmission
	}

	s.round.agreement[agentID] = agrees
	if t := s.round.voteTimers[agentID]; t != nil {
		t.Stop()
	}

	if len(s.round.agreement) == len(s.round.order) {
		s.resolveRound()
	}
	return nil
}

// voteTimedOut трактует молчание как agrees=false
func (s *Session) voteTimedOut(tf timerFired) {
	if s.status != models.StatusConsensusPending || s.round == nil || tf.round != s.round.number {
		return
	}
	if _, voted := s.round.agreement[tf.agent]; voted {
		return
	}

	log.Printf("Meeting %s: agent %s vote timed out in round %d", s.id, tf.agent, s.round.number)
	s.round.agreement[tf.agent] = false

	if len(s.round.agreement) == len(s.round.order) {
		s.resolveRound()
	}
}

// resolveRound подводит итог раунда: консенсус, следующий раунд
// или исчерпание лимита раундов
func (s *Session) resolveRound() {
	unanimous := true
	for _, agentID := range s.round.order {
		if !s.round.agreement[agentID] {
			unanimous = false
			break
		}
	}

	if unanimous {
		s.completeWithConsensus()
		return
	}

	if s.currentRound < s.maxRounds {
		s.currentRound++
		s.status = models.StatusInProgress
		s.persistStatus()
		s.beginRound()
		return
	}

	s.complete(models.OutcomeNoConsensus, "")
}

func (s *Session) completeWithConsensus() {
	decision := s.buildDecision()
	if err := s.store.CreateDecision(decision); err != nil {
		log.Printf("Meeting %s: failed to persist decision: %v", s.id, err)
	}

	agreement := make(map[string]bool, len(s.round.agreement))
	for agentID, agrees := range s.round.agreement {
		agreement[agentID.String()] = agrees
	}

	s.status = models.StatusCompleted
	s.outcome = models.OutcomeConsensus
	s.persistStatus()

	s.broadcastEvent(MeetingEvent{
		Event:     EventConsensusReached,
		MeetingID: s.id,
		Round:     s.currentRound,
		Status:    s.status,
		Outcome:   s.outcome,
		Decision: &DecisionView{
			Content:   decision.Content,
			Rationale: decision.Rationale,
			Agreement: agreement,
		},
	})

	s.broadcastEvent(MeetingEvent{
		Event:     EventMeetingCompleted,
		MeetingID: s.id,
		Round:     s.currentRound,
		Status:    s.status,
		Outcome:   s.outcome,
	})
}

func (s *Session) complete(outcome models.MeetingOutcome, reason string) {
	s.status = models.StatusCompleted
	s.outcome = outcome
	s.persistStatus()

	s.broadcastEvent(MeetingEvent{
		Event:     EventMeetingCompleted,
		MeetingID: s.id,
		Round:     s.currentRound,
		Status:    s.status,
		Outcome:   s.outcome,
		Reason:    reason,
	})
}

func (s *Session) buildDecision() *models.Decision {
	names := make(map[uuid.UUID]string, len(s.slots))
	for _, slot := range s.slots {
		names[slot.agentID] = slot.name
	}

	content, rationale := s.summarize.Summarize(s.topic, s.currentRound, names, s.round.records)

	agreement := make(map[string]bool, len(s.round.agreement))
	for agentID, agrees := range s.round.agreement {
		agreement[agentID.String()] = agrees
	}
	agreementJSON, _ := json.Marshal(agreement)

	opinionIDs := make([]uuid.UUID, 0, len(s.round.records))
	for _, op := range s.round.records {
		opinionIDs = append(opinionIDs, op.ID)
	}
	idsJSON, _ := json.Marshal(opinionIDs)

	return &models.Decision{
		ID:         uuid.New(),
		MeetingID:  s.id,
		Content:    content,
		Rationale:  rationale,
		Agreement:  string(agreementJSON),
		OpinionIDs: string(idsJSON),
		CreatedAt:  time.Now(),
	}
}

func (s *Session) join(agentID uuid.UUID) (*Snapshot, error) {
	idx := s.slotIndex(agentID)
	if idx < 0 {
		return nil, ErrUnknownParticipant
	}

	slot := s.slots[idx]
	slot.connected = true
	if slot.joinedAt.IsZero() {
		slot.joinedAt = time.Now()
	}

	s.broadcastEventExcept(MeetingEvent{
		Event:     EventAgentJoined,
		MeetingID: s.id,
		AgentID:   &agentID,
		Round:     s.currentRound,
		Status:    s.status,
	}, agentID)

	return s.snapshot(), nil
}

// leave помечает слот отключенным, не трогая позицию в раунде:
// ожидающие слоты закроют свои таймеры
func (s *Session) leave(agentID uuid.UUID) error {
	idx := s.slotIndex(agentID)
	if idx < 0 {
		return ErrUnknownParticipant
	}

	if !s.slots[idx].connected {
		return nil
	}
	s.slots[idx].connected = false

	s.broadcastEventExcept(MeetingEvent{
		Event:     EventAgentLeft,
		MeetingID: s.id,
		AgentID:   &agentID,
		Round:     s.currentRound,
		Status:    s.status,
	}, agentID)

	return nil
}

func (s *Session) cancel() error {
	if s.status == models.StatusCompleted {
		return nil
	}
	s.complete(models.OutcomeNoConsensus, "cancelled")
	return nil
}

func (s *Session) snapshot() *Snapshot {
	snap := &Snapshot{
		MeetingID:    s.id,
		Topic:        s.topic,
		Status:       s.status,
		Outcome:      s.outcome,
		CurrentRound: s.currentRound,
		MaxRounds:    s.maxRounds,
	}

	for _, slot := range s.slots {
		snap.Participants = append(snap.Participants, ParticipantView{
			AgentID:   slot.agentID,
			AgentName: slot.name,
			Connected: slot.connected,
		})
	}

	if s.round != nil {
		snap.SpeakingOrder = append([]uuid.UUID(nil), s.round.order...)
		if s.status == models.StatusInProgress && s.round.cursor < len(s.round.order) {
			awaiting := s.round.order[s.round.cursor]
			snap.AwaitingAgent = &awaiting
		}
	}

	return snap
}

// shutdown останавливает таймеры и закрывает цикл; вызывается только
// из горутины run после достижения терминального состояния
func (s *Session) shutdown() {
	s.closed = true

	if s.round != nil {
		if s.round.opinionTimer != nil {
			s.round.opinionTimer.Stop()
		}
		for _, t := range s.round.voteTimers {
			t.Stop()
		}
	}

	close(s.done)

	if s.onEnd != nil {
		s.onEnd(s.id)
	}
}

func (s *Session) persistStatus() {
	if err := s.store.UpdateMeetingStatus(s.id, s.status, s.outcome, s.currentRound); err != nil {
		log.Printf("Meeting %s: failed to persist status %s: %v", s.id, s.status, err)
	}
}

func (s *Session) broadcastEvent(event MeetingEvent) {
	s.transport.Broadcast(s.id, OutMeetingEvent, event, uuid.Nil)
}

func (s *Session) broadcastEventExcept(event MeetingEvent, exclude uuid.UUID) {
	s.transport.Broadcast(s.id, OutMeetingEvent, event, exclude)
}

func (s *Session) opinionView(op *models.Opinion) OpinionView {
	name := ""
	if idx := s.slotIndex(op.AgentID); idx >= 0 {
		name = s.slots[idx].name
	}
	return OpinionView{
		ID:             op.ID,
		AgentID:        op.AgentID,
		AgentName:      name,
		RoundNumber:    op.RoundNumber,
		SequenceNumber: op.SequenceNumber,
		Content:        op.Content,
		IsTimeout:      op.IsTimeout,
		CreatedAt:      op.CreatedAt,
	}
}

func (s *Session) slotIndex(agentID uuid.UUID) int {
	for i, slot := range s.slots {
		if slot.agentID == agentID {
			return i
		}
	}
	return -1
}

func (s *Session) orderIndex(agentID uuid.UUID) int {
	for i, id := range s.round.order {
		if id == agentID {
			return i
		}
	}
	return -1
}

func (s *Session) connectedCount() int {
	count := 0
	for _, slot := range s.slots {
		if slot.connected {
			count++
		}
	}
	return count
}
