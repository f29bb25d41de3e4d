package clarify

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"ai-supportdesk-be/pkg/dialogue"
)

// Reply is the interpreted user response to an open MCQ.
type Reply struct {
	// Answer is the effective answer to the original question: the matched
	// option text, or the user's raw text when nothing matched.
	Answer string
	// Selected is true for a structured option selection, false for a
	// free-text ("write your own") reply.
	Selected bool
}

// Node formulates and tracks the single open clarifying question per
// session.
type Node struct{}

func NewNode() *Node {
	return &Node{}
}

// Ask opens a new clarification. At most one may be open; asking a second
// while one is outstanding is rejected and the existing one is reused.
func (n *Node) Ask(current *dialogue.Clarification, question string, options []string) (*dialogue.Clarification, error) {
	if current != nil {
		return current, dialogue.ErrClarificationAlreadyPending
	}
	return &dialogue.Clarification{
		Question: question,
		Options:  options,
		AskedAt:  time.Now(),
	}, nil
}

var trailingPunct = regexp.MustCompile(`[.!?)\s]+$`)

// InterpretReply matches userText against the offered options. A bare
// option number ("2", "2.") or a case-normalized match of the option text
// counts as a structured selection; everything else passes through as
// free text.
func (n *Node) InterpretReply(pending *dialogue.Clarification, userText string) Reply {
	trimmed := strings.TrimSpace(userText)
	normalized := normalize(trimmed)

	// Bare option number, 1-based.
	if idx, err := strconv.Atoi(trailingPunct.ReplaceAllString(trimmed, "")); err == nil {
		if idx >= 1 && idx <= len(pending.Options) {
			return Reply{Answer: pending.Options[idx-1], Selected: true}
		}
	}

	for _, opt := range pending.Options {
		if normalize(opt) == normalized {
			return Reply{Answer: opt, Selected: true}
		}
	}

	return Reply{Answer: trimmed, Selected: false}
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = trailingPunct.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}
