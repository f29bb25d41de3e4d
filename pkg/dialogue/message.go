package dialogue

import (
	"fmt"
	"time"
)

// Role of a dialogue message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PayloadKind discriminates the assistant message payload variants. The set
// is closed: a message is exactly one of text, mcq, or ticket.
type PayloadKind string

const (
	PayloadText   PayloadKind = "text"
	PayloadMCQ    PayloadKind = "mcq"
	PayloadTicket PayloadKind = "ticket"
)

// MCQPayload is a multiple-choice clarifying question.
type MCQPayload struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// TicketPayload mirrors a ticket draft shown to the user.
type TicketPayload struct {
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Message is one turn of dialogue. Immutable once created; corrections
// happen by appending new messages.
type Message struct {
	Role      Role
	Content   string
	Timestamp time.Time
	Kind      PayloadKind
	MCQ       *MCQPayload
	Ticket    *TicketPayload
}

func NewUserMessage(content string) Message {
	return Message{
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now(),
		Kind:      PayloadText,
	}
}

func NewAssistantText(content string) Message {
	return Message{
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
		Kind:      PayloadText,
	}
}

func NewAssistantMCQ(question string, options []string) Message {
	return Message{
		Role:      RoleAssistant,
		Content:   question,
		Timestamp: time.Now(),
		Kind:      PayloadMCQ,
		MCQ:       &MCQPayload{Question: question, Options: options},
	}
}

func NewAssistantTicket(t TicketPayload) Message {
	return Message{
		Role:      RoleAssistant,
		Content:   t.Title,
		Timestamp: time.Now(),
		Kind:      PayloadTicket,
		Ticket:    &t,
	}
}

// ClassifyRole is total over the two roles: anything not explicitly
// assistant is treated as user input.
func ClassifyRole(m Message) Role {
	if m.Role == RoleAssistant {
		return RoleAssistant
	}
	return RoleUser
}

// ExtractContent returns the displayable text of a message regardless of
// payload variant.
func ExtractContent(m Message) string {
	switch m.Kind {
	case PayloadMCQ:
		if m.MCQ != nil {
			return m.MCQ.Question
		}
	case PayloadTicket:
		if m.Ticket != nil {
			return fmt.Sprintf("[%s] %s: %s", m.Ticket.Category, m.Ticket.Title, m.Ticket.Description)
		}
	}
	return m.Content
}

// FindLastUserMessage walks history backwards for the most recent user turn.
func FindLastUserMessage(history []Message) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if ClassifyRole(history[i]) == RoleUser {
			return ExtractContent(history[i]), true
		}
	}
	return "", false
}

// BuildConversationSnippets renders history as "role: content" lines,
// most-recent-last, keeping only the trailing maxTurns entries.
func BuildConversationSnippets(history []Message, maxTurns int) []string {
	if maxTurns > 0 && len(history) > maxTurns {
		history = history[len(history)-maxTurns:]
	}

	snippets := make([]string, 0, len(history))
	for _, m := range history {
		snippets = append(snippets, fmt.Sprintf("%s: %s", ClassifyRole(m), ExtractContent(m)))
	}
	return snippets
}
