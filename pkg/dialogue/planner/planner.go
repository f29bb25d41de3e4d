package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"ai-supportdesk-be/pkg/dialogue"
	"ai-supportdesk-be/pkg/llm"
)

// Action the planner can choose for the next step of a turn.
const (
	ActionRetrieve   = "RETRIEVE"
	ActionClarify    = "CLARIFY"
	ActionAnswer     = "ANSWER"
	ActionTicket     = "TICKET"
	ActionCapability = "CAPABILITY"
)

// Plan is one planning decision, parsed from the model's JSON output.
type Plan struct {
	Action    string   `json:"action"`
	Query     string   `json:"query"`     // RETRIEVE: sub-query text
	Kind      string   `json:"kind"`      // RETRIEVE: lexical | semantic | both
	Question  string   `json:"question"`  // CLARIFY: MCQ question
	Options   []string `json:"options"`   // CLARIFY: answer options
	Reasoning string   `json:"reasoning"`
	Forced    bool     `json:"-"` // set when budget enforcement overrode the model
}

// Budgets caps the planner's tool usage within one answer-composition cycle.
type Budgets struct {
	MaxRetrievals     int
	MaxClarifications int
}

func DefaultBudgets() Budgets {
	return Budgets{MaxRetrievals: 5, MaxClarifications: 1}
}

// Planner is the per-turn decision engine: given session state and the
// latest user message it picks the next action, subject to budgets.
type Planner struct {
	llmProvider llm.LLMProvider
	budgets     Budgets
	logger      *log.Logger
}

func NewPlanner(llmProvider llm.LLMProvider, budgets Budgets, logger *log.Logger) *Planner {
	return &Planner{
		llmProvider: llmProvider,
		budgets:     budgets,
		logger:      logger,
	}
}

func (p *Planner) Budgets() Budgets {
	return p.budgets
}

// Decide produces the next action for the current cycle. Budget limits are
// enforced here, after the model call: a RETRIEVE past the cap or a
// duplicate sub-query is overridden deterministically.
func (p *Planner) Decide(ctx context.Context, sess *dialogue.Session, question string) (*Plan, error) {
	budgetLeft := p.budgets.MaxRetrievals - sess.RetrievalAttempts

	// Budget gone: no point asking the model for retrieval options.
	if budgetLeft <= 0 {
		return p.forcedPlan(sess), nil
	}

	promptText := p.buildPrompt(sess, question, budgetLeft)
	response, err := p.llmProvider.Generate(ctx, promptText, llm.WithTemperature(0.0))
	if err != nil {
		return nil, &dialogue.LanguageModelError{Err: err}
	}

	plan, err := p.parsePlan(response)
	if err != nil {
		p.logger.Printf("[WARN] Plan parsing failed, using fallback: %v", err)
		plan = p.fallbackPlan(sess, question)
	}

	p.enforce(sess, plan)

	p.logger.Printf("[PLAN] Action=%s Query=%q Kind=%s Forced=%v (attempts %d/%d)",
		plan.Action, plan.Query, plan.Kind, plan.Forced, sess.RetrievalAttempts, p.budgets.MaxRetrievals)
	return plan, nil
}

// CheckRelated gates final answers: clearly off-domain questions route to a
// capabilities explanation instead. Model failure defaults to related so a
// flaky model never blocks answering.
func (p *Planner) CheckRelated(ctx context.Context, promptText string) bool {
	response, err := p.llmProvider.Generate(ctx, promptText, llm.WithTemperature(0.0), llm.WithMaxTokens(5))
	if err != nil {
		p.logger.Printf("[WARN] Relatedness check failed, assuming related: %v", err)
		return true
	}
	return !strings.Contains(strings.ToUpper(response), "NO")
}

// RouteAfterCapability interprets the user's reply to a capabilities
// explanation: open a ticket, or treat the reply as a fresh question.
// One-word model decision, defaulting to a fresh question.
func (p *Planner) RouteAfterCapability(ctx context.Context, reply string) string {
	var prompt strings.Builder
	prompt.WriteString("<system>\n")
	prompt.WriteString("The assistant just explained it cannot help with the user's request and offered to open a support ticket.\n")
	prompt.WriteString("Classify the user's reply. Respond with exactly one word:\n")
	prompt.WriteString("TICKET - the user wants a human support ticket opened\n")
	prompt.WriteString("MESSAGE - the user asked something new or declined\n")
	prompt.WriteString("</system>\n\n")
	prompt.WriteString("<reply>\n")
	prompt.WriteString(reply)
	prompt.WriteString("\n</reply>\n\nOne word:")

	response, err := p.llmProvider.Generate(ctx, prompt.String(), llm.WithTemperature(0.0), llm.WithMaxTokens(5))
	if err != nil {
		p.logger.Printf("[WARN] Capability routing failed, treating as message: %v", err)
		return "message"
	}
	if strings.Contains(strings.ToUpper(response), "TICKET") {
		return "ticket"
	}
	return "message"
}

func (p *Planner) buildPrompt(sess *dialogue.Session, question string, budgetLeft int) string {
	var prompt strings.Builder

	prompt.WriteString("<system>\n")
	prompt.WriteString("You are the planning step of a support assistant. You do NOT answer the user.\n")
	prompt.WriteString("You pick exactly ONE next action and respond with ONLY valid JSON.\n")
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

	prompt.WriteString("<evidence>\n")
	if len(sess.Evidence) == 0 {
		prompt.WriteString("(none gathered yet)\n")
	}
	for _, ev := range sess.Evidence {
		prompt.WriteString(fmt.Sprintf("- [%s] %s\n", ev.ID, truncate(ev.Text, 200)))
	}
	prompt.WriteString("</evidence>\n\n")

	prompt.WriteString("<issued_queries>\n")
	for q := range sess.IssuedQueries {
		prompt.WriteString("- ")
		prompt.WriteString(q)
		prompt.WriteString("\n")
	}
	prompt.WriteString("</issued_queries>\n\n")

	prompt.WriteString("<rules>\n")
	prompt.WriteString(fmt.Sprintf("You may issue at most %d more retrieval sub-queries this turn.\n", budgetLeft))
	prompt.WriteString("NEVER repeat a query from <issued_queries>. Rephrase or stop retrieving.\n")
	if sess.ClarificationsAsked >= p.budgets.MaxClarifications {
		prompt.WriteString("You have used your clarifying question for this turn. Do not choose CLARIFY.\n")
	}
	prompt.WriteString("</rules>\n\n")

	prompt.WriteString("<actions>\n")
	prompt.WriteString("RETRIEVE: search the knowledge base. Requires query (short keyword phrase) and kind (lexical|semantic|both).\n")
	prompt.WriteString("CLARIFY: ask ONE multiple-choice question. Requires question and 2-4 options.\n")
	prompt.WriteString("ANSWER: enough evidence gathered (or question answerable from conversation alone).\n")
	prompt.WriteString("TICKET: automated answering failed; escalate to a human support ticket.\n")
	prompt.WriteString("CAPABILITY: the question is clearly outside this product's support domain.\n")
	prompt.WriteString("</actions>\n\n")

	prompt.WriteString("<output_format>\n")
	prompt.WriteString("{\n")
	prompt.WriteString("  \"action\": \"RETRIEVE|CLARIFY|ANSWER|TICKET|CAPABILITY\",\n")
	prompt.WriteString("  \"query\": \"sub-query if RETRIEVE, otherwise empty\",\n")
	prompt.WriteString("  \"kind\": \"lexical|semantic|both\",\n")
	prompt.WriteString("  \"question\": \"MCQ question if CLARIFY\",\n")
	prompt.WriteString("  \"options\": [\"option 1\", \"option 2\"],\n")
	prompt.WriteString("  \"reasoning\": \"brief\"\n")
	prompt.WriteString("}\n")
	prompt.WriteString("</output_format>")

	return prompt.String()
}

func (p *Planner) parsePlan(response string) (*Plan, error) {
	jsonContent := extractJSON(response)
	if jsonContent == "" {
		return nil, fmt.Errorf("no JSON found in response")
	}

	var plan Plan
	if err := json.Unmarshal([]byte(jsonContent), &plan); err != nil {
		return nil, fmt.Errorf("JSON unmarshal failed: %w", err)
	}

	plan.Action = strings.ToUpper(strings.TrimSpace(plan.Action))
	plan.Kind = strings.ToLower(strings.TrimSpace(plan.Kind))
	if plan.Kind == "" {
		plan.Kind = "both"
	}
	return &plan, nil
}

// fallbackPlan is the deterministic decision when the model's output is
// unusable: retrieve on the raw question if nothing was gathered yet,
// otherwise answer with what we have.
func (p *Planner) fallbackPlan(sess *dialogue.Session, question string) *Plan {
	if len(sess.Evidence) == 0 && sess.RetrievalAttempts < p.budgets.MaxRetrievals && !sess.QueryIssued(question) {
		return &Plan{
			Action:    ActionRetrieve,
			Query:     question,
			Kind:      "both",
			Reasoning: "fallback: no evidence yet, retrieving on the question itself",
		}
	}
	return &Plan{
		Action:    ActionAnswer,
		Reasoning: "fallback: answering with gathered evidence",
	}
}

// enforce applies the hard budget and dedupe rules on top of whatever the
// model chose.
func (p *Planner) enforce(sess *dialogue.Session, plan *Plan) {
	switch plan.Action {
	case ActionRetrieve:
		if sess.RetrievalAttempts >= p.budgets.MaxRetrievals || sess.QueryIssued(plan.Query) || strings.TrimSpace(plan.Query) == "" {
			forced := p.forcedPlan(sess)
			*plan = *forced
		}
	case ActionClarify:
		if sess.ClarificationsAsked >= p.budgets.MaxClarifications || sess.PendingClarification != nil {
			forced := p.forcedPlan(sess)
			*plan = *forced
		}
	case ActionAnswer, ActionTicket, ActionCapability:
		// always allowed
	default:
		forced := p.forcedPlan(sess)
		*plan = *forced
	}
}

// forcedPlan resolves a cycle whose budget is exhausted: answer if any
// evidence was gathered, escalate otherwise.
func (p *Planner) forcedPlan(sess *dialogue.Session) *Plan {
	if len(sess.Evidence) > 0 {
		return &Plan{
			Action:    ActionAnswer,
			Forced:    true,
			Reasoning: "retrieval budget exhausted, answering with gathered evidence",
		}
	}
	return &Plan{
		Action:    ActionTicket,
		Forced:    true,
		Reasoning: "retrieval budget exhausted with no usable evidence, escalating",
	}
}

func extractJSON(response string) string {
	startIdx := strings.Index(response, "{")
	endIdx := strings.LastIndex(response, "}")

	if startIdx == -1 || endIdx == -1 || endIdx <= startIdx {
		return ""
	}
	return response[startIdx : endIdx+1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
