package websocket

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestClient(hub *Hub, agentID uuid.UUID) *Client {
	// Conn остается nil: операции hub трогают только канал Send
	return NewClient(hub, nil, agentID)
}

func drain(t *testing.T, c *Client) *Message {
	t.Helper()
	select {
	case raw := <-c.Send:
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("invalid envelope: %v", err)
		}
		return &msg
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
		return nil
	}
}

func assertEmpty(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.Send:
		t.Fatalf("unexpected message: %s", raw)
	default:
	}
}

func TestBroadcastExcludesAgent(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	meetingID := uuid.New()
	a := newTestClient(hub, uuid.New())
	b := newTestClient(hub, uuid.New())

	hub.Register(a)
	hub.Register(b)
	hub.JoinMeeting(a, meetingID)
	hub.JoinMeeting(b, meetingID)

	hub.Broadcast(meetingID, string(TypeMeetingEvent), map[string]string{"event": "round_started"}, a.AgentID)

	msg := drain(t, b)
	if msg.Type != TypeMeetingEvent {
		t.Fatalf("got type %s, want %s", msg.Type, TypeMeetingEvent)
	}
	if msg.MeetingID == nil || *msg.MeetingID != meetingID {
		t.Fatalf("envelope meeting id = %v, want %s", msg.MeetingID, meetingID)
	}
	assertEmpty(t, a)
}

func TestSendToAgentTargetsAllAgentConnections(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	meetingID := uuid.New()
	agentID := uuid.New()
	first := newTestClient(hub, agentID)
	second := newTestClient(hub, agentID)
	other := newTestClient(hub, uuid.New())

	for _, c := range []*Client{first, second, other} {
		hub.Register(c)
		hub.JoinMeeting(c, meetingID)
	}

	hub.SendToAgent(meetingID, agentID, string(TypeOpinionRequest), map[string]string{"topic": "release"})

	for _, c := range []*Client{first, second} {
		msg := drain(t, c)
		if msg.Type != TypeOpinionRequest {
			t.Fatalf("got type %s, want %s", msg.Type, TypeOpinionRequest)
		}
	}
	assertEmpty(t, other)
}

func TestLeaveMeetingStopsDelivery(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	meetingID := uuid.New()
	c := newTestClient(hub, uuid.New())

	hub.Register(c)
	hub.JoinMeeting(c, meetingID)
	if !c.IsInMeeting(meetingID) {
		t.Fatal("client should be in meeting after join")
	}

	hub.LeaveMeeting(c, meetingID)
	if c.IsInMeeting(meetingID) {
		t.Fatal("client should not be in meeting after leave")
	}

	hub.Broadcast(meetingID, string(TypeMeetingEvent), nil, uuid.Nil)
	assertEmpty(t, c)
}

type presenceRecorder struct {
	mu      sync.Mutex
	dropped []uuid.UUID
	notify  chan struct{}
}

func (p *presenceRecorder) AgentDisconnected(meetingID, agentID uuid.UUID) {
	p.mu.Lock()
	p.dropped = append(p.dropped, meetingID)
	p.mu.Unlock()
	p.notify <- struct{}{}
}

func TestUnregisterNotifiesPresenceListener(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	recorder := &presenceRecorder{notify: make(chan struct{}, 4)}
	hub.SetPresenceListener(recorder)

	meetingID := uuid.New()
	agentID := uuid.New()
	first := newTestClient(hub, agentID)
	second := newTestClient(hub, agentID)

	hub.Register(first)
	hub.Register(second)
	hub.JoinMeeting(first, meetingID)
	hub.JoinMeeting(second, meetingID)

	// Пока живо второе соединение того же агента, присутствие сохраняется
	hub.Unregister(first)
	time.Sleep(50 * time.Millisecond)

	recorder.mu.Lock()
	early := len(recorder.dropped)
	recorder.mu.Unlock()
	if early != 0 {
		t.Fatalf("presence dropped with a live connection remaining")
	}

	hub.Unregister(second)
	select {
	case <-recorder.notify:
	case <-time.After(time.Second):
		t.Fatal("presence listener was not notified")
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.dropped) != 1 || recorder.dropped[0] != meetingID {
		t.Fatalf("dropped = %v, want [%s]", recorder.dropped, meetingID)
	}
}

func TestGetMeetingAgentsDeduplicatesConnections(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	meetingID := uuid.New()
	agentID := uuid.New()
	first := newTestClient(hub, agentID)
	second := newTestClient(hub, agentID)

	hub.Register(first)
	hub.Register(second)
	hub.JoinMeeting(first, meetingID)
	hub.JoinMeeting(second, meetingID)

	agents := hub.GetMeetingAgents(meetingID)
	if len(agents) != 1 || agents[0] != agentID {
		t.Fatalf("agents = %v, want [%s]", agents, agentID)
	}
}
