package clarify

import (
	"errors"
	"testing"

	"ai-supportdesk-be/pkg/dialogue"
)

func TestAskRejectsSecondClarification(t *testing.T) {
	n := NewNode()

	first, err := n.Ask(nil, "Which app are you using?", []string{"Web", "Mobile"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	second, err := n.Ask(first, "Another question?", []string{"A", "B"})
	if !errors.Is(err, dialogue.ErrClarificationAlreadyPending) {
		t.Errorf("err = %v, want ErrClarificationAlreadyPending", err)
	}
	if second != first {
		t.Error("rejected Ask must return the existing open clarification")
	}
}

func TestInterpretReply(t *testing.T) {
	n := NewNode()
	pending := &dialogue.Clarification{
		Question: "Which platform is affected?",
		Options:  []string{"Web app", "Mobile app", "Desktop app"},
	}

	tests := []struct {
		name         string
		reply        string
		wantAnswer   string
		wantSelected bool
	}{
		{"bare number", "2", "Mobile app", true},
		{"number with period", "2.", "Mobile app", true},
		{"exact option text", "Mobile app", "Mobile app", true},
		{"case insensitive option", "mobile APP", "Mobile app", true},
		{"option with trailing punctuation", "Web app!", "Web app", true},
		{"ordinal words are free text", "the second one", "the second one", false},
		{"out of range number", "7", "7", false},
		{"zero is not an option", "0", "0", false},
		{"free text answer", "it happens on my iPad at work", "it happens on my iPad at work", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.InterpretReply(pending, tt.reply)
			if got.Answer != tt.wantAnswer {
				t.Errorf("Answer = %q, want %q", got.Answer, tt.wantAnswer)
			}
			if got.Selected != tt.wantSelected {
				t.Errorf("Selected = %v, want %v", got.Selected, tt.wantSelected)
			}
		})
	}
}
