package meeting

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/consilium/internal/models"
)

type fakeStore struct {
	mu        sync.Mutex
	opinions  []*models.Opinion
	decisions []*models.Decision
	statuses  []statusUpdate
}

type statusUpdate struct {
	status  models.MeetingStatus
	outcome models.MeetingOutcome
	round   int
}

func (s *fakeStore) AppendOpinion(op *models.Opinion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *op
	s.opinions = append(s.opinions, &cp)
	return nil
}

func (s *fakeStore) CreateDecision(d *models.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.decisions = append(s.decisions, &cp)
	return nil
}

func (s *fakeStore) UpdateMeetingStatus(_ uuid.UUID, status models.MeetingStatus, outcome models.MeetingOutcome, round int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, statusUpdate{status, outcome, round})
	return nil
}

func (s *fakeStore) storedOpinions() []*models.Opinion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Opinion(nil), s.opinions...)
}

func (s *fakeStore) storedDecisions() []*models.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Decision(nil), s.decisions...)
}

func (s *fakeStore) lastStatus() statusUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		return statusUpdate{}
	}
	return s.statuses[len(s.statuses)-1]
}

type sentMessage struct {
	meetingID uuid.UUID
	agentID   uuid.UUID
	msgType   string
	data      interface{}
}

type fakeTransport struct {
	mu     sync.Mutex
	sends  []sentMessage
	notify chan sentMessage
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{notify: make(chan sentMessage, 256)}
}

func (t *fakeTransport) SendToAgent(meetingID, agentID uuid.UUID, msgType string, data interface{}) {
	t.record(sentMessage{meetingID, agentID, msgType, data})
}

func (t *fakeTransport) Broadcast(meetingID uuid.UUID, msgType string, data interface{}, exclude uuid.UUID) {
	t.record(sentMessage{meetingID, uuid.Nil, msgType, data})
}

func (t *fakeTransport) record(msg sentMessage) {
	t.mu.Lock()
	t.sends = append(t.sends, msg)
	t.mu.Unlock()

	select {
	case t.notify <- msg:
	default:
	}
}

// waitFor ждет сообщения данного типа (и адресата, если он задан)
func (t *fakeTransport) waitFor(tb testing.TB, msgType string, agentID uuid.UUID) sentMessage {
	tb.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-t.notify:
			if msg.msgType != msgType {
				continue
			}
			if agentID != uuid.Nil && msg.agentID != agentID {
				continue
			}
			return msg
		case <-deadline:
			tb.Fatalf("timed out waiting for %s message", msgType)
		}
	}
}

type testEnv struct {
	store     *fakeStore
	transport *fakeTransport
	orch      *Orchestrator
	meeting   *models.Meeting
	agents    []uuid.UUID
	ended     chan uuid.UUID
}

func newTestEnv(t *testing.T, participants int, maxRounds int, mode models.OrderMode, timeout time.Duration) *testEnv {
	t.Helper()

	names := []string{"alpha", "bravo", "charlie", "delta", "echo"}
	agents := make([]models.Agent, participants)
	ids := make([]uuid.UUID, participants)
	for i := range agents {
		ids[i] = uuid.New()
		agents[i] = models.Agent{ID: ids[i], Name: names[i%len(names)]}
	}

	orderJSON, _ := json.Marshal(ids)
	m := &models.Meeting{
		ID:               uuid.New(),
		Topic:            "release readiness",
		MeetingType:      "user_specified",
		OrderMode:        mode,
		MaxRounds:        maxRounds,
		Status:           models.StatusPending,
		ParticipantOrder: string(orderJSON),
		Participants:     agents,
	}

	store := &fakeStore{}
	transport := newFakeTransport()
	ended := make(chan uuid.UUID, 1)

	orch := NewOrchestrator(store, transport, Config{
		SlotTimeout:  timeout,
		OnSessionEnd: func(id uuid.UUID) { ended <- id },
	})

	if _, err := orch.Register(m); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	return &testEnv{
		store:     store,
		transport: transport,
		orch:      orch,
		meeting:   m,
		agents:    ids,
		ended:     ended,
	}
}

func (e *testEnv) joinAll(t *testing.T) {
	t.Helper()
	for _, id := range e.agents {
		if _, err := e.orch.Join(e.meeting.ID, id); err != nil {
			t.Fatalf("Join(%s) error = %v", id, err)
		}
	}
}

func (e *testEnv) waitEnded(t *testing.T) {
	t.Helper()
	select {
	case <-e.ended:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}
}

func TestScenarioA_UnanimousConsensus(t *testing.T) {
	env := newTestEnv(t, 3, 1, models.OrderFixed, time.Minute)
	a, b, c := env.agents[0], env.agents[1], env.agents[2]

	env.joinAll(t)
	if err := env.orch.Start(env.meeting.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	env.transport.waitFor(t, OutOpinionRequest, a)
	for i, content := range []string{"X", "Y", "X"} {
		if err := env.orch.SubmitOpinion(env.meeting.ID, env.agents[i], content); err != nil {
			t.Fatalf("SubmitOpinion(%d) error = %v", i, err)
		}
	}

	for _, id := range env.agents {
		if err := env.orch.SubmitVote(env.meeting.ID, id, true); err != nil {
			t.Fatalf("SubmitVote(%s) error = %v", id, err)
		}
	}

	last := env.store.lastStatus()
	if last.status != models.StatusCompleted || last.outcome != models.OutcomeConsensus {
		t.Fatalf("final status = %s/%s, want completed/consensus_reached", last.status, last.outcome)
	}

	decisions := env.store.storedDecisions()
	if len(decisions) != 1 {
		t.Fatalf("got %d decisions, want exactly 1", len(decisions))
	}
	if decisions[0].Content == "" || decisions[0].Rationale == "" {
		t.Fatal("decision content and rationale must be non-empty")
	}

	var agreement map[string]bool
	if err := json.Unmarshal([]byte(decisions[0].Agreement), &agreement); err != nil {
		t.Fatalf("agreement is not valid json: %v", err)
	}
	for _, id := range []uuid.UUID{a, b, c} {
		if !agreement[id.String()] {
			t.Fatalf("agreement[%s] = false, want true", id)
		}
	}

	env.waitEnded(t)
}

func TestScenarioB_NoConsensusOnLastRound(t *testing.T) {
	env := newTestEnv(t, 3, 1, models.OrderFixed, time.Minute)

	env.joinAll(t)
	if err := env.orch.Start(env.meeting.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i, content := range []string{"X", "Y", "X"} {
		if err := env.orch.SubmitOpinion(env.meeting.ID, env.agents[i], content); err != nil {
			t.Fatalf("SubmitOpinion(%d) error = %v", i, err)
		}
	}

	votes := []bool{true, false, true}
	for i, id := range env.agents {
		if err := env.orch.SubmitVote(env.meeting.ID, id, votes[i]); err != nil {
			t.Fatalf("SubmitVote(%s) error = %v", id, err)
		}
	}

	last := env.store.lastStatus()
	if last.status != models.StatusCompleted || last.outcome != models.OutcomeNoConsensus {
		t.Fatalf("final status = %s/%s, want completed/no_consensus", last.status, last.outcome)
	}

	if got := len(env.store.storedDecisions()); got != 0 {
		t.Fatalf("got %d decisions, want none", got)
	}

	env.waitEnded(t)
}

func TestScenarioC_OpinionTimeout(t *testing.T) {
	env := newTestEnv(t, 3, 1, models.OrderFixed, 50*time.Millisecond)
	a, b, c := env.agents[0], env.agents[1], env.agents[2]

	env.joinAll(t)
	if err := env.orch.Start(env.meeting.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	env.transport.waitFor(t, OutOpinionRequest, a)
	if err := env.orch.SubmitOpinion(env.meeting.ID, a, "X"); err != nil {
		t.Fatalf("SubmitOpinion(a) error = %v", err)
	}

	// b молчит; его слот должен закрыться таймаутом, а c получить запрос
	env.transport.waitFor(t, OutOpinionRequest, c)
	if err := env.orch.SubmitOpinion(env.meeting.ID, c, "X"); err != nil {
		t.Fatalf("SubmitOpinion(c) error = %v", err)
	}

	opinions := env.store.storedOpinions()
	if len(opinions) != 3 {
		t.Fatalf("got %d opinions, want 3", len(opinions))
	}

	bRecord := opinions[1]
	if bRecord.AgentID != b || !bRecord.IsTimeout || bRecord.Content != TimeoutContent {
		t.Fatalf("b record = {agent %s, timeout %v, content %q}", bRecord.AgentID, bRecord.IsTimeout, bRecord.Content)
	}
	if bRecord.SequenceNumber != opinions[0].SequenceNumber+1 {
		t.Fatalf("b sequence = %d, want %d", bRecord.SequenceNumber, opinions[0].SequenceNumber+1)
	}

	env.waitEnded(t)
}

func TestVoteTimeoutCountsAsDisagree(t *testing.T) {
	env := newTestEnv(t, 3, 1, models.OrderFixed, 80*time.Millisecond)
	a, c := env.agents[0], env.agents[2]

	env.joinAll(t)
	if err := env.orch.Start(env.meeting.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for _, id := range env.agents {
		if err := env.orch.SubmitOpinion(env.meeting.ID, id, "same"); err != nil {
			t.Fatalf("SubmitOpinion(%s) error = %v", id, err)
		}
	}

	// b не голосует: его таймаут трактуется как agrees=false
	if err := env.orch.SubmitVote(env.meeting.ID, a, true); err != nil {
		t.Fatalf("SubmitVote(a) error = %v", err)
	}
	if err := env.orch.SubmitVote(env.meeting.ID, c, true); err != nil {
		t.Fatalf("SubmitVote(c) error = %v", err)
	}

	env.waitEnded(t)

	last := env.store.lastStatus()
	if last.status != models.StatusCompleted || last.outcome != models.OutcomeNoConsensus {
		t.Fatalf("final status = %s/%s, want completed/no_consensus", last.status, last.outcome)
	}
	if got := len(env.store.storedDecisions()); got != 0 {
		t.Fatalf("got %d decisions, want none", got)
	}
}

func TestSequenceNumbersAcrossRounds(t *testing.T) {
	env := newTestEnv(t, 3, 2, models.OrderFixed, time.Minute)

	env.joinAll(t)
	if err := env.orch.Start(env.meeting.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	votes := []bool{true, false, true}
	for round := 1; round <= 2; round++ {
		for _, id := range env.agents {
			if err := env.orch.SubmitOpinion(env.meeting.ID, id, "opinion"); err != nil {
				t.Fatalf("round %d SubmitOpinion(%s) error = %v", round, id, err)
			}
		}
		for i, id := range env.agents {
			if err := env.orch.SubmitVote(env.meeting.ID, id, votes[i]); err != nil {
				t.Fatalf("round %d SubmitVote(%s) error = %v", round, id, err)
			}
		}
	}

	opinions := env.store.storedOpinions()
	if len(opinions) != 6 {
		t.Fatalf("got %d opinions, want 6", len(opinions))
	}
	for i, op := range opinions {
		if op.SequenceNumber != i+1 {
			t.Fatalf("opinion %d has sequence %d, want %d", i, op.SequenceNumber, i+1)
		}
		wantRound := i/3 + 1
		if op.RoundNumber != wantRound {
			t.Fatalf("opinion %d has round %d, want %d", i, op.RoundNumber, wantRound)
		}
		if op.AgentID != env.agents[i%3] {
			t.Fatalf("opinion %d out of speaking order", i)
		}
	}

	env.waitEnded(t)
}

func TestInvalidTransitions(t *testing.T) {
	env := newTestEnv(t, 3, 1, models.OrderFixed, time.Minute)
	a, c := env.agents[0], env.agents[2]

	// Старт без подключенных участников
	if err := env.orch.Start(env.meeting.ID); err != ErrNoParticipants {
		t.Fatalf("Start() without participants = %v, want ErrNoParticipants", err)
	}

	env.joinAll(t)

	// Мнение до старта
	if err := env.orch.SubmitOpinion(env.meeting.ID, a, "early"); err != ErrInvalidTransition {
		t.Fatalf("SubmitOpinion() before start = %v, want ErrInvalidTransition", err)
	}

	if err := env.orch.Start(env.meeting.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Повторный старт
	if err := env.orch.Start(env.meeting.ID); err != ErrInvalidTransition {
		t.Fatalf("second Start() = %v, want ErrInvalidTransition", err)
	}

	// Голос во время сбора мнений
	if err := env.orch.SubmitVote(env.meeting.ID, a, true); err != ErrInvalidTransition {
		t.Fatalf("SubmitVote() during round 1 = %v, want ErrInvalidTransition", err)
	}

	// Мнение вне очереди
	if err := env.orch.SubmitOpinion(env.meeting.ID, c, "not my turn"); err != ErrInvalidTransition {
		t.Fatalf("SubmitOpinion() out of turn = %v, want ErrInvalidTransition", err)
	}

	// Чужак
	if err := env.orch.SubmitOpinion(env.meeting.ID, uuid.New(), "who am i"); err != ErrUnknownParticipant {
		t.Fatalf("SubmitOpinion() from stranger = %v, want ErrUnknownParticipant", err)
	}

	// Неизвестное совещание
	if err := env.orch.Start(uuid.New()); err != ErrMeetingNotFound {
		t.Fatalf("Start() unknown meeting = %v, want ErrMeetingNotFound", err)
	}
}

func TestStaleSubmissions(t *testing.T) {
	env := newTestEnv(t, 3, 2, models.OrderFixed, time.Minute)
	a := env.agents[0]

	env.joinAll(t)
	if err := env.orch.Start(env.meeting.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := env.orch.SubmitOpinion(env.meeting.ID, a, "first"); err != nil {
		t.Fatalf("SubmitOpinion(a) error = %v", err)
	}

	// Слот уже закрыт записью
	if err := env.orch.SubmitOpinion(env.meeting.ID, a, "again"); err != ErrStaleSubmission {
		t.Fatalf("duplicate opinion = %v, want ErrStaleSubmission", err)
	}

	for _, id := range env.agents[1:] {
		if err := env.orch.SubmitOpinion(env.meeting.ID, id, "opinion"); err != nil {
			t.Fatalf("SubmitOpinion(%s) error = %v", id, err)
		}
	}

	// Мнение в фазе консенсуса
	if err := env.orch.SubmitOpinion(env.meeting.ID, a, "late"); err != ErrStaleSubmission {
		t.Fatalf("opinion during consensus = %v, want ErrStaleSubmission", err)
	}

	votes := []bool{true, false, true}
	for i, id := range env.agents {
		if err := env.orch.SubmitVote(env.meeting.ID, id, votes[i]); err != nil {
			t.Fatalf("SubmitVote(%s) error = %v", id, err)
		}
	}

	// Раунд 1 разрешен, идет раунд 2: повторный голос отклоняется
	if err := env.orch.SubmitVote(env.meeting.ID, a, true); err != ErrStaleSubmission {
		t.Fatalf("vote after round resolved = %v, want ErrStaleSubmission", err)
	}
}

func TestDisconnectReconnectWithinTimeout(t *testing.T) {
	env := newTestEnv(t, 2, 1, models.OrderFixed, 500*time.Millisecond)
	a := env.agents[0]

	env.joinAll(t)
	if err := env.orch.Start(env.meeting.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// a отключается и возвращается до истечения своего слота
	if err := env.orch.Leave(env.meeting.ID, a); err != nil {
		t.Fatalf("Leave(a) error = %v", err)
	}
	if _, err := env.orch.Join(env.meeting.ID, a); err != nil {
		t.Fatalf("rejoin(a) error = %v", err)
	}

	if err := env.orch.SubmitOpinion(env.meeting.ID, a, "made it back"); err != nil {
		t.Fatalf("SubmitOpinion(a) after reconnect error = %v", err)
	}

	opinions := env.store.storedOpinions()
	if len(opinions) != 1 || opinions[0].IsTimeout {
		t.Fatalf("a's record should be a real opinion, got %+v", opinions[0])
	}
}

func TestCancelForcesCompletion(t *testing.T) {
	env := newTestEnv(t, 3, 5, models.OrderFixed, time.Minute)

	env.joinAll(t)
	if err := env.orch.Start(env.meeting.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := env.orch.Cancel(env.meeting.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	env.waitEnded(t)

	last := env.store.lastStatus()
	if last.status != models.StatusCompleted || last.outcome != models.OutcomeNoConsensus {
		t.Fatalf("after cancel status = %s/%s, want completed/no_consensus", last.status, last.outcome)
	}

	// Все команды после завершения отклоняются
	if err := env.orch.Start(env.meeting.ID); err != ErrMeetingNotFound {
		t.Fatalf("Start() after cancel = %v, want ErrMeetingNotFound", err)
	}
}

func TestNextRoundAfterFailedConsensus(t *testing.T) {
	env := newTestEnv(t, 2, 2, models.OrderFixed, time.Minute)
	a, b := env.agents[0], env.agents[1]

	env.joinAll(t)
	if err := env.orch.Start(env.meeting.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Раунд 1: консенсуса нет
	for _, id := range env.agents {
		if err := env.orch.SubmitOpinion(env.meeting.ID, id, "v1"); err != nil {
			t.Fatalf("SubmitOpinion(%s) error = %v", id, err)
		}
	}
	if err := env.orch.SubmitVote(env.meeting.ID, a, true); err != nil {
		t.Fatalf("SubmitVote(a) error = %v", err)
	}
	if err := env.orch.SubmitVote(env.meeting.ID, b, false); err != nil {
		t.Fatalf("SubmitVote(b) error = %v", err)
	}

	snap, err := env.orch.Snapshot(env.meeting.ID)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.Status != models.StatusInProgress || snap.CurrentRound != 2 {
		t.Fatalf("after round 1: status=%s round=%d, want in_progress round 2", snap.Status, snap.CurrentRound)
	}

	// Раунд 2: единогласно
	for _, id := range env.agents {
		if err := env.orch.SubmitOpinion(env.meeting.ID, id, "v2"); err != nil {
			t.Fatalf("round 2 SubmitOpinion(%s) error = %v", id, err)
		}
	}
	for _, id := range env.agents {
		if err := env.orch.SubmitVote(env.meeting.ID, id, true); err != nil {
			t.Fatalf("round 2 SubmitVote(%s) error = %v", id, err)
		}
	}

	last := env.store.lastStatus()
	if last.status != models.StatusCompleted || last.outcome != models.OutcomeConsensus || last.round != 2 {
		t.Fatalf("final = %+v, want completed/consensus_reached on round 2", last)
	}
	if got := len(env.store.storedDecisions()); got != 1 {
		t.Fatalf("got %d decisions, want exactly 1", got)
	}

	env.waitEnded(t)
}
