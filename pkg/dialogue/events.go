package dialogue

// EventType tags one streamed chat event.
type EventType string

const (
	EventText   EventType = "text"
	EventMCQ    EventType = "mcq"
	EventTicket EventType = "ticket"
	EventNode   EventType = "node"
	EventDone   EventType = "done"
	EventError  EventType = "error"
)

// StreamEvent is one typed event delivered to the chat caller while a turn
// is being processed.
type StreamEvent struct {
	Type EventType `json:"type"`

	// EventText
	Token string `json:"token,omitempty"`

	// EventMCQ
	Question string   `json:"question,omitempty"`
	Answers  []string `json:"answers,omitempty"`

	// EventTicket
	Category    string `json:"category,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	// EventNode (informational progress marker)
	Name string `json:"name,omitempty"`

	// EventError
	Message string `json:"message,omitempty"`
}

// EmitFunc delivers one stream event to the caller. Returning an error
// cancels the in-flight turn (caller disconnected).
type EmitFunc func(StreamEvent) error

// DiscardEvents is an EmitFunc that drops everything; used where the caller
// does not consume a stream.
func DiscardEvents(StreamEvent) error { return nil }

func TextEvent(token string) StreamEvent {
	return StreamEvent{Type: EventText, Token: token}
}

func MCQEvent(question string, answers []string) StreamEvent {
	return StreamEvent{Type: EventMCQ, Question: question, Answers: answers}
}

func TicketEvent(t TicketPayload) StreamEvent {
	return StreamEvent{
		Type:        EventTicket,
		Category:    t.Category,
		Title:       t.Title,
		Description: t.Description,
	}
}

func NodeEvent(name string) StreamEvent {
	return StreamEvent{Type: EventNode, Name: name}
}

func DoneEvent() StreamEvent {
	return StreamEvent{Type: EventDone}
}

func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: EventError, Message: message}
}
