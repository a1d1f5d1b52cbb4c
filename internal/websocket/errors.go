package websocket

import "errors"

var (
	ErrClientQueueFull  = errors.New("client message queue is full")
	ErrInvalidMessage   = errors.New("invalid message format")
	ErrMeetingRequired  = errors.New("meeting_id is required")
	ErrAgentNotInRoom   = errors.New("agent has not joined this meeting")
	ErrUnknownDirective = errors.New("unknown message type")
)
