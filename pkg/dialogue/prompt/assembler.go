package prompt

import (
	"fmt"
	"strings"

	"ai-supportdesk-be/pkg/dialogue"
)

// Assembler merges retrieved passages, conversation snippets, and the
// current question into structured prompts for the language model.
type Assembler struct {
	maxSnippetTurns int
}

func NewAssembler(maxSnippetTurns int) *Assembler {
	if maxSnippetTurns <= 0 {
		maxSnippetTurns = 15
	}
	return &Assembler{maxSnippetTurns: maxSnippetTurns}
}

// BuildGroundedAnswerPrompt produces the final answer-composition prompt.
func (a *Assembler) BuildGroundedAnswerPrompt(question string, history []dialogue.Message, evidence []dialogue.RetrievedPassage) string {
	var prompt strings.Builder

	prompt.WriteString("<system>\n")
	prompt.WriteString("You are a support assistant. Answer the user's question using ONLY the knowledge passages below.\n")
	prompt.WriteString("If the passages do not contain the answer, say so honestly. Do not invent facts.\n")
	prompt.WriteString("Answer in the user's language, concise and direct.\n")
	prompt.WriteString("</system>\n\n")

	a.writeConversation(&prompt, history)
	a.writeEvidence(&prompt, evidence)

	prompt.WriteString("<question>\n")
	prompt.WriteString(question)
	prompt.WriteString("\n</question>\n\n")

	prompt.WriteString("Answer:")
	return prompt.String()
}

// BuildRelatednessPrompt asks for a one-word yes/no on whether the question
// is in the product domain at all.
func (a *Assembler) BuildRelatednessPrompt(question string, evidence []dialogue.RetrievedPassage) string {
	var prompt strings.Builder

	prompt.WriteString("<system>\n")
	prompt.WriteString("You decide whether a customer question relates to this product and its support domain.\n")
	prompt.WriteString("Respond with exactly one word: YES or NO.\n")
	prompt.WriteString("</system>\n\n")

	a.writeEvidence(&prompt, evidence)

	prompt.WriteString("<question>\n")
	prompt.WriteString(question)
	prompt.WriteString("\n</question>\n\n")

	prompt.WriteString("One word (YES/NO):")
	return prompt.String()
}

func (a *Assembler) writeConversation(prompt *strings.Builder, history []dialogue.Message) {
	snippets := dialogue.BuildConversationSnippets(history, a.maxSnippetTurns)
	if len(snippets) == 0 {
		return
	}
	prompt.WriteString("<conversation>\n")
	for _, s := range snippets {
		prompt.WriteString(s)
		prompt.WriteString("\n")
	}
	prompt.WriteString("</conversation>\n\n")
}

func (a *Assembler) writeEvidence(prompt *strings.Builder, evidence []dialogue.RetrievedPassage) {
	prompt.WriteString("<knowledge>\n")
	if len(evidence) == 0 {
		prompt.WriteString("(no passages retrieved)\n")
	}
	for i, p := range evidence {
		prompt.WriteString(fmt.Sprintf("[%d] (score %.3f) %s\n", i+1, p.Score, p.Text))
	}
	prompt.WriteString("</knowledge>\n\n")
}
