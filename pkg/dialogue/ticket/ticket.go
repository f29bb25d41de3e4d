package ticket

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"ai-supportdesk-be/pkg/dialogue"
	"ai-supportdesk-be/pkg/llm"
)

const maxCategoryWords = 3

// Node builds and edits human-escalation tickets from session context.
type Node struct {
	llmProvider llm.LLMProvider
	logger      *log.Logger
}

func NewNode(llmProvider llm.LLMProvider, logger *log.Logger) *Node {
	return &Node{
		llmProvider: llmProvider,
		logger:      logger,
	}
}

type ticketFields struct {
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Build populates a draft from the conversation and what retrieval tried.
// An unparseable model response degrades to a deterministic fallback draft
// rather than failing the escalation.
func (n *Node) Build(ctx context.Context, sess *dialogue.Session, question string) (*dialogue.TicketDraft, error) {
	promptText := n.buildPrompt(sess, question)

	response, err := n.llmProvider.Generate(ctx, promptText, llm.WithTemperature(0.2))
	if err != nil {
		return nil, &dialogue.LanguageModelError{Err: err}
	}

	fields, err := parseFields(response)
	if err != nil {
		n.logger.Printf("[WARN] Ticket parsing failed, using fallback draft: %v", err)
		return fallbackDraft(question), nil
	}

	return &dialogue.TicketDraft{
		Category:    clampCategory(fields.Category),
		Title:       fields.Title,
		Description: fields.Description,
	}, nil
}

// Submit marks the draft submitted. Submitted drafts are immutable except
// through ApplyEditInstruction.
func (n *Node) Submit(draft *dialogue.TicketDraft) error {
	if draft == nil {
		return dialogue.ErrNoTicketDraft
	}
	if draft.Submitted {
		return dialogue.ErrTicketAlreadySubmitted
	}
	draft.Submitted = true
	return nil
}

// ApplyEditInstruction interprets a free-text instruction and revises only
// the targeted fields; everything else keeps its prior value verbatim.
func (n *Node) ApplyEditInstruction(ctx context.Context, draft *dialogue.TicketDraft, instruction string) (*dialogue.TicketDraft, error) {
	if draft == nil {
		return nil, dialogue.ErrNoTicketDraft
	}

	var prompt strings.Builder
	prompt.WriteString("<system>\n")
	prompt.WriteString("You edit a support ticket according to the user's instruction.\n")
	prompt.WriteString("Respond with ONLY a JSON object containing ONLY the fields that change.\n")
	prompt.WriteString("Valid fields: category, title, description. Do not include unchanged fields.\n")
	prompt.WriteString("</system>\n\n")

	prompt.WriteString("<ticket>\n")
	prompt.WriteString(fmt.Sprintf("category: %s\ntitle: %s\ndescription: %s\n", draft.Category, draft.Title, draft.Description))
	prompt.WriteString("</ticket>\n\n")

	prompt.WriteString("<instruction>\n")
	prompt.WriteString(instruction)
	prompt.WriteString("\n</instruction>")

	response, err := n.llmProvider.Generate(ctx, prompt.String(), llm.WithTemperature(0.0))
	if err != nil {
		return nil, &dialogue.LanguageModelError{Err: err}
	}

	fields, err := parseFields(response)
	if err != nil {
		return nil, fmt.Errorf("interpret edit instruction: %w", err)
	}

	updated := *draft
	if fields.Category != "" {
		updated.Category = clampCategory(fields.Category)
	}
	if fields.Title != "" {
		updated.Title = fields.Title
	}
	if fields.Description != "" {
		updated.Description = fields.Description
	}
	return &updated, nil
}

func (n *Node) buildPrompt(sess *dialogue.Session, question string) string {
	var prompt strings.Builder

	prompt.WriteString("<system>\n")
	prompt.WriteString("Automated support could not resolve the user's request. Build a ticket for human follow-up.\n")
	prompt.WriteString("Respond with ONLY valid JSON: {\"category\": \"...\", \"title\": \"...\", \"description\": \"...\"}\n")
	prompt.WriteString("category: at most three words. title: one short sentence. description: what was asked, what was tried, why it failed.\n")
	prompt.WriteString("</system>\n\n")

	prompt.WriteString("<conversation>\n")
	for _, s := range dialogue.BuildConversationSnippets(sess.History, 15) {
		prompt.WriteString(s)
		prompt.WriteString("\n")
	}
	prompt.WriteString("</conversation>\n\n")

	prompt.WriteString("<question>\n")
	prompt.WriteString(question)
	prompt.WriteString("\n</question>\n\n")

	prompt.WriteString("<attempted_queries>\n")
	for q := range sess.IssuedQueries {
		prompt.WriteString("- ")
		prompt.WriteString(q)
		prompt.WriteString("\n")
	}
	prompt.WriteString("</attempted_queries>")

	return prompt.String()
}

func parseFields(response string) (*ticketFields, error) {
	startIdx := strings.Index(response, "{")
	endIdx := strings.LastIndex(response, "}")
	if startIdx == -1 || endIdx == -1 || endIdx <= startIdx {
		return nil, fmt.Errorf("no JSON found in response")
	}

	var fields ticketFields
	if err := json.Unmarshal([]byte(response[startIdx:endIdx+1]), &fields); err != nil {
		return nil, fmt.Errorf("JSON unmarshal failed: %w", err)
	}
	return &fields, nil
}

func clampCategory(category string) string {
	words := strings.Fields(category)
	if len(words) > maxCategoryWords {
		words = words[:maxCategoryWords]
	}
	return strings.Join(words, " ")
}

func fallbackDraft(question string) *dialogue.TicketDraft {
	title := question
	if len(title) > 80 {
		title = title[:80]
	}
	return &dialogue.TicketDraft{
		Category:    "General",
		Title:       title,
		Description: fmt.Sprintf("User request that automated support could not resolve: %s", question),
	}
}
