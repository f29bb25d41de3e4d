package events

import "time"

const TicketSubmittedType = "TICKET_SUBMITTED"

// NewTicketSubmittedEvent is emitted when a session's escalation ticket is
// handed off to human support.
func NewTicketSubmittedEvent(ticketId, sessionId, userId, category, title string) Event {
	return BaseEvent{
		Type: TicketSubmittedType,
		Data: map[string]interface{}{
			"ticket_id":  ticketId,
			"session_id": sessionId,
			"user_id":    userId,
			"category":   category,
			"title":      title,
		},
		OccurredAt: time.Now(),
	}
}
