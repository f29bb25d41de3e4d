package constant

// Chat message roles as persisted.
const (
	ChatMessageRoleUser      = "user"
	ChatMessageRoleAssistant = "assistant"
)

// Chat message payload kinds as persisted.
const (
	ChatMessageKindText   = "text"
	ChatMessageKindMCQ    = "mcq"
	ChatMessageKindTicket = "ticket"
)

// Ticket statuses.
const (
	TicketStatusDraft     = "draft"
	TicketStatusSubmitted = "submitted"
)
