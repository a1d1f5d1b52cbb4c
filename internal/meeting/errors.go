package meeting

import "errors"

var (
	ErrMeetingNotFound    = errors.New("meeting not found")
	ErrMeetingClosed      = errors.New("meeting is closed")
	ErrInvalidTransition  = errors.New("event is not valid in the current meeting state")
	ErrStaleSubmission    = errors.New("submission for an already resolved slot")
	ErrUnknownParticipant = errors.New("agent is not a participant of this meeting")
	ErrNoParticipants     = errors.New("no connected participants")
)

// TimeoutContent подставляется вместо мнения участника, не ответившего в срок
const TimeoutContent = "[No response - timeout]"
