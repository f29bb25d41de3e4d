package graph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"ai-supportdesk-be/pkg/dialogue"
	"ai-supportdesk-be/pkg/dialogue/clarify"
	"ai-supportdesk-be/pkg/dialogue/planner"
	"ai-supportdesk-be/pkg/dialogue/prompt"
	"ai-supportdesk-be/pkg/dialogue/retrievalexec"
	"ai-supportdesk-be/pkg/dialogue/ticket"
	"ai-supportdesk-be/pkg/llm"
)

// CapabilityMessage is the canned reply for questions outside the support
// domain, offering a human ticket instead.
const CapabilityMessage = "I can help with questions about this product: account access, billing, features, and troubleshooting. " +
	"Your request seems to be outside what I can answer from the knowledge base. " +
	"Would you like me to open a support ticket so a human can follow up?"

// TicketLockedMessage redirects plain questions after a ticket was
// submitted.
const TicketLockedMessage = "A support ticket has been submitted for this conversation. " +
	"You can still adjust it - tell me what to change (for example: \"change the title to ...\"). " +
	"For a new question, please start a new conversation."

// Config tunes the orchestrator.
type Config struct {
	// MaxSnippetTurns of history included in prompts.
	MaxSnippetTurns int
	// LockoutPermanent keeps post-ticket sessions in edit-only mode. When
	// false, a reply classified as a fresh question reopens the session.
	LockoutPermanent bool
	// LLMTimeout bounds each language-model call.
	LLMTimeout time.Duration
	// StopAfterStaleRounds ends the retrieval loop after this many
	// consecutive sub-queries that produced no new information.
	StopAfterStaleRounds int
}

func DefaultConfig() Config {
	return Config{
		MaxSnippetTurns:      15,
		LockoutPermanent:     true,
		LLMTimeout:           60 * time.Second,
		StopAfterStaleRounds: 2,
	}
}

// TurnResult reports what one committed user turn produced.
type TurnResult struct {
	// Messages are the history entries appended by this turn, user message
	// first. Empty for a replayed duplicate.
	Messages []dialogue.Message
	State    dialogue.State
	// Replayed is true when the turn was recognized as an already-committed
	// duplicate and no new state was produced.
	Replayed bool
}

// Orchestrator wires the planning, retrieval, clarification, and ticket
// nodes into the explicit state machine that owns per-session state.
type Orchestrator struct {
	planner     *planner.Planner
	executor    *retrievalexec.Executor
	clarifier   *clarify.Node
	ticketNode  *ticket.Node
	assembler   *prompt.Assembler
	llmProvider llm.LLMProvider
	cfg         Config
	logger      *log.Logger
}

func NewOrchestrator(
	p *planner.Planner,
	executor *retrievalexec.Executor,
	clarifier *clarify.Node,
	ticketNode *ticket.Node,
	assembler *prompt.Assembler,
	llmProvider llm.LLMProvider,
	cfg Config,
	logger *log.Logger,
) *Orchestrator {
	return &Orchestrator{
		planner:     p,
		executor:    executor,
		clarifier:   clarifier,
		ticketNode:  ticketNode,
		assembler:   assembler,
		llmProvider: llmProvider,
		cfg:         cfg,
		logger:      logger,
	}
}

// eventKind drives the dispatch table. Each turn is a chain of events fed
// through step until a terminal effect ends it.
type eventKind int

const (
	evUserMessage eventKind = iota
	evQuestionReady
	evPlanNeeded
	evRetrieve
	evClarify
	evAnswer
	evTicket
	evCapability
	evEditInstruction
)

type event struct {
	kind eventKind
	text string
	plan *planner.Plan
}

// turn stages every state change so nothing is visible on the session until
// commit. An aborted turn (model failure, caller disconnect) leaves history
// and state untouched.
type turn struct {
	sess       *dialogue.Session
	emit       dialogue.EmitFunc
	userText   string
	question   string
	seqAtStart int

	staged []dialogue.Message
	state  dialogue.State

	pendingClar       *dialogue.Clarification
	clarifiedQuestion string
	ticketDraft       *dialogue.TicketDraft
	capabilityOffered bool

	staleRounds int
}

// Turn processes one user message through the graph. The caller must hold
// the session lock. On error nothing has been committed and the whole turn
// may be retried safely.
func (o *Orchestrator) Turn(ctx context.Context, sess *dialogue.Session, userText string, emit dialogue.EmitFunc) (*TurnResult, error) {
	if emit == nil {
		emit = dialogue.DiscardEvents
	}

	if replayed, ok := o.replayDuplicate(sess, userText, emit); ok {
		return replayed, nil
	}

	t := &turn{
		sess:              sess,
		emit:              emit,
		userText:          userText,
		seqAtStart:        len(sess.History),
		state:             sess.State,
		pendingClar:       sess.PendingClarification,
		clarifiedQuestion: sess.ClarifiedQuestion,
		ticketDraft:       sess.Ticket,
		capabilityOffered: sess.CapabilityOffered,
	}

	ev := &event{kind: evUserMessage, text: userText}
	var err error
	for ev != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		ev, err = o.step(ctx, t, ev)
		if err != nil {
			return nil, err
		}
	}

	result := o.commit(t)
	if emitErr := emit(dialogue.DoneEvent()); emitErr != nil {
		o.logger.Printf("[TURN] done event dropped: %v", emitErr)
	}
	return result, nil
}

// step is the single dispatch function: (state, event) in, (next event or
// terminal effect) out. All routing rules live here, not in the nodes.
func (o *Orchestrator) step(ctx context.Context, t *turn, ev *event) (*event, error) {
	switch ev.kind {

	case evUserMessage:
		return o.routeUserMessage(ctx, t, ev.text)

	case evQuestionReady:
		t.state = dialogue.StateRetrieving
		return &event{kind: evPlanNeeded}, nil

	case evPlanNeeded:
		o.notify(t, "planner")
		plan, err := o.decide(ctx, t)
		if err != nil {
			return nil, err
		}
		switch plan.Action {
		case planner.ActionRetrieve:
			return &event{kind: evRetrieve, plan: plan}, nil
		case planner.ActionClarify:
			return &event{kind: evClarify, plan: plan}, nil
		case planner.ActionTicket:
			return &event{kind: evTicket}, nil
		case planner.ActionCapability:
			return &event{kind: evCapability}, nil
		default:
			return &event{kind: evAnswer}, nil
		}

	case evRetrieve:
		return o.runRetrieval(ctx, t, ev.plan)

	case evClarify:
		return o.askClarification(t, ev.plan)

	case evAnswer:
		return o.composeAnswer(ctx, t)

	case evTicket:
		return o.buildTicket(ctx, t)

	case evCapability:
		o.notify(t, "capability")
		t.stage(dialogue.NewAssistantText(CapabilityMessage))
		o.emitTokens(t, CapabilityMessage)
		t.capabilityOffered = true
		t.state = dialogue.StateAwaitingQuestion
		return nil, nil

	case evEditInstruction:
		return o.applyTicketEdit(ctx, t, ev.text)
	}

	return nil, fmt.Errorf("unhandled event %d in state %s", ev.kind, t.state)
}

// routeUserMessage decides how an incoming message enters the graph based
// on what the session is waiting for.
func (o *Orchestrator) routeUserMessage(ctx context.Context, t *turn, text string) (*event, error) {
	// Post-submission lockout: edit instructions only.
	if t.sess.TicketSubmitted && t.state == dialogue.StateAwaitingTicketEdit {
		return o.routeAfterSubmission(ctx, t, text)
	}

	// Draft shown but not yet submitted: chat input edits the draft.
	if t.state == dialogue.StateAwaitingTicketEdit && t.ticketDraft != nil {
		return &event{kind: evEditInstruction, text: text}, nil
	}

	// An open MCQ captures the reply instead of starting a fresh question.
	if t.pendingClar != nil {
		reply := o.clarifier.InterpretReply(t.pendingClar, text)
		o.logger.Printf("[CLARIFY] Reply interpreted: selected=%v answer=%q", reply.Selected, reply.Answer)
		t.question = fmt.Sprintf("%s (clarified: %s)", t.clarifiedQuestion, reply.Answer)
		t.pendingClar = nil
		t.clarifiedQuestion = ""
		return &event{kind: evQuestionReady}, nil
	}

	// Reply to a capabilities explanation: ticket or fresh question.
	if t.capabilityOffered {
		t.capabilityOffered = false
		if o.planner.RouteAfterCapability(ctx, text) == "ticket" {
			t.question = text
			return &event{kind: evTicket}, nil
		}
	}

	// Fresh question: new answer-composition cycle, fresh budgets.
	t.sess.ResetTurn()
	t.question = text
	return &event{kind: evQuestionReady}, nil
}

func (o *Orchestrator) routeAfterSubmission(ctx context.Context, t *turn, text string) (*event, error) {
	if looksLikeEditInstruction(text) {
		return &event{kind: evEditInstruction, text: text}, nil
	}

	if !o.cfg.LockoutPermanent {
		// Configurable reset: a new topic reopens the session.
		t.sess.ResetTurn()
		t.question = text
		t.state = dialogue.StateAwaitingQuestion
		return &event{kind: evQuestionReady}, nil
	}

	o.notify(t, "ticket_locked")
	t.stage(dialogue.NewAssistantText(TicketLockedMessage))
	o.emitTokens(t, TicketLockedMessage)
	return nil, nil
}

func (o *Orchestrator) decide(ctx context.Context, t *turn) (*planner.Plan, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.LLMTimeout)
	defer cancel()
	return o.planner.Decide(callCtx, t.sess, t.question)
}

func (o *Orchestrator) runRetrieval(ctx context.Context, t *turn, plan *planner.Plan) (*event, error) {
	o.notify(t, "retrieve")

	if !t.sess.MarkQueryIssued(plan.Query) {
		// The planner slipped a duplicate past its own rules; count it as a
		// stale round and re-plan rather than re-issuing.
		o.logger.Printf("[RETRIEVE] Duplicate sub-query rejected: %q", plan.Query)
		t.staleRounds++
		return o.afterRetrievalRound(t)
	}

	t.sess.RetrievalAttempts++
	result, err := o.executor.Execute(ctx, t.sess, plan.Query, plan.Kind)
	if err != nil {
		// Node-local failure: degrade to zero results, keep going.
		o.logger.Printf("[RETRIEVE] Sub-query %q failed: %v", plan.Query, err)
		t.staleRounds++
		return o.afterRetrievalRound(t)
	}

	if result.NewInformation {
		t.staleRounds = 0
	} else {
		t.staleRounds++
	}
	return o.afterRetrievalRound(t)
}

// afterRetrievalRound loops back to planning unless diminishing returns say
// to stop early.
func (o *Orchestrator) afterRetrievalRound(t *turn) (*event, error) {
	if t.staleRounds >= o.cfg.StopAfterStaleRounds {
		o.logger.Printf("[RETRIEVE] %d stale rounds, stopping retrieval early", t.staleRounds)
		if len(t.sess.Evidence) > 0 {
			return &event{kind: evAnswer}, nil
		}
		return &event{kind: evTicket}, nil
	}
	return &event{kind: evPlanNeeded}, nil
}

func (o *Orchestrator) askClarification(t *turn, plan *planner.Plan) (*event, error) {
	o.notify(t, "clarify")

	pending, err := o.clarifier.Ask(t.pendingClar, plan.Question, plan.Options)
	if err != nil {
		// One open MCQ max: re-present the existing question instead.
		o.logger.Printf("[CLARIFY] %v, reusing open question", err)
	} else {
		t.clarifiedQuestion = t.question
		t.sess.ClarificationsAsked++
	}
	t.pendingClar = pending

	t.stage(dialogue.NewAssistantMCQ(pending.Question, pending.Options))
	if emitErr := t.emit(dialogue.MCQEvent(pending.Question, pending.Options)); emitErr != nil {
		return nil, emitErr
	}
	t.state = dialogue.StateAwaitingClarificationReply
	return nil, nil
}

func (o *Orchestrator) composeAnswer(ctx context.Context, t *turn) (*event, error) {
	t.state = dialogue.StateComposingAnswer

	// Relatedness gate: off-domain questions get the capabilities reply.
	relCtx, cancel := context.WithTimeout(ctx, o.cfg.LLMTimeout)
	related := o.planner.CheckRelated(relCtx, o.assembler.BuildRelatednessPrompt(t.question, t.sess.Evidence))
	cancel()
	if !related {
		return &event{kind: evCapability}, nil
	}

	o.notify(t, "answer")
	promptText := o.assembler.BuildGroundedAnswerPrompt(t.question, t.sess.History, t.sess.Evidence)

	callCtx, cancelCall := context.WithTimeout(ctx, o.cfg.LLMTimeout)
	defer cancelCall()
	answer, err := o.llmProvider.GenerateStream(callCtx, promptText, func(token string) error {
		return t.emit(dialogue.TextEvent(token))
	})
	if err != nil {
		if ctx.Err() != nil {
			// Caller gone or turn timed out: discard, commit nothing.
			return nil, ctx.Err()
		}
		return nil, &dialogue.LanguageModelError{Err: err}
	}

	t.stage(dialogue.NewAssistantText(answer))
	t.state = dialogue.StateAwaitingQuestion
	return nil, nil
}

func (o *Orchestrator) buildTicket(ctx context.Context, t *turn) (*event, error) {
	o.notify(t, "ticket")
	t.state = dialogue.StateBuildingTicket

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.LLMTimeout)
	defer cancel()
	draft, err := o.ticketNode.Build(callCtx, t.sess, t.question)
	if err != nil {
		return nil, err
	}

	t.ticketDraft = draft
	t.stage(dialogue.NewAssistantTicket(draft.Payload()))
	if emitErr := t.emit(dialogue.TicketEvent(draft.Payload())); emitErr != nil {
		return nil, emitErr
	}
	t.state = dialogue.StateAwaitingTicketEdit
	return nil, nil
}

func (o *Orchestrator) applyTicketEdit(ctx context.Context, t *turn, instruction string) (*event, error) {
	o.notify(t, "ticket_edit")

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.LLMTimeout)
	defer cancel()
	updated, err := o.ticketNode.ApplyEditInstruction(callCtx, t.ticketDraft, instruction)
	if err != nil {
		if dialogue.IsLanguageModelError(err) {
			return nil, err
		}
		// Instruction not interpretable: tell the user, change nothing.
		msg := "I could not apply that to the ticket. Tell me which field to change, for example: \"change the title to ...\"."
		t.stage(dialogue.NewAssistantText(msg))
		o.emitTokens(t, msg)
		return nil, nil
	}

	updated.Submitted = t.ticketDraft.Submitted
	t.ticketDraft = updated
	t.stage(dialogue.NewAssistantTicket(updated.Payload()))
	if emitErr := t.emit(dialogue.TicketEvent(updated.Payload())); emitErr != nil {
		return nil, emitErr
	}
	t.state = dialogue.StateAwaitingTicketEdit
	return nil, nil
}

// SubmitTicket finalizes the session's draft. After this, ordinary
// question-answering is locked (subject to Config.LockoutPermanent).
func (o *Orchestrator) SubmitTicket(sess *dialogue.Session) (*dialogue.TicketDraft, error) {
	if sess.Ticket == nil {
		return nil, dialogue.ErrNoTicketDraft
	}
	if err := o.ticketNode.Submit(sess.Ticket); err != nil {
		return nil, err
	}
	sess.TicketSubmitted = true
	sess.State = dialogue.StateAwaitingTicketEdit
	return sess.Ticket, nil
}

// commit applies the staged turn to the session. Single mutation point per
// user turn.
func (o *Orchestrator) commit(t *turn) *TurnResult {
	userMsg := dialogue.NewUserMessage(t.userText)
	messages := append([]dialogue.Message{userMsg}, t.staged...)

	for _, m := range messages {
		t.sess.Append(m)
	}
	t.sess.State = t.state
	t.sess.PendingClarification = t.pendingClar
	t.sess.ClarifiedQuestion = t.clarifiedQuestion
	t.sess.Ticket = t.ticketDraft
	t.sess.CapabilityOffered = t.capabilityOffered
	t.sess.LastTurnFingerprint = turnFingerprint(t.userText, t.seqAtStart)

	return &TurnResult{
		Messages: messages,
		State:    t.sess.State,
	}
}

// replayDuplicate recognizes a user message that was already committed (the
// reply was lost in transit) and re-emits the committed result instead of
// appending it twice.
func (o *Orchestrator) replayDuplicate(sess *dialogue.Session, userText string, emit dialogue.EmitFunc) (*TurnResult, bool) {
	idx := -1
	for i := len(sess.History) - 1; i >= 0; i-- {
		if dialogue.ClassifyRole(sess.History[i]) == dialogue.RoleUser {
			idx = i
			break
		}
	}
	if idx < 0 || sess.History[idx].Content != userText {
		return nil, false
	}
	if sess.LastTurnFingerprint != turnFingerprint(userText, idx) {
		return nil, false
	}

	o.logger.Printf("[TURN] Duplicate delivery detected for session %s, replaying", sess.ID)
	for _, m := range sess.History[idx+1:] {
		_ = emit(messageToEvent(m))
	}
	_ = emit(dialogue.DoneEvent())
	return &TurnResult{State: sess.State, Replayed: true}, true
}

func messageToEvent(m dialogue.Message) dialogue.StreamEvent {
	switch m.Kind {
	case dialogue.PayloadMCQ:
		if m.MCQ != nil {
			return dialogue.MCQEvent(m.MCQ.Question, m.MCQ.Options)
		}
	case dialogue.PayloadTicket:
		if m.Ticket != nil {
			return dialogue.TicketEvent(*m.Ticket)
		}
	}
	return dialogue.TextEvent(m.Content)
}

func (o *Orchestrator) notify(t *turn, node string) {
	if err := t.emit(dialogue.NodeEvent(node)); err != nil {
		o.logger.Printf("[TURN] node event dropped: %v", err)
	}
}

func (o *Orchestrator) emitTokens(t *turn, text string) {
	if err := t.emit(dialogue.TextEvent(text)); err != nil {
		o.logger.Printf("[TURN] text event dropped: %v", err)
	}
}

func (t *turn) stage(m dialogue.Message) {
	t.staged = append(t.staged, m)
}

var editVerbs = []string{"change", "update", "edit", "set ", "replace", "rename", "rewrite", "make the"}

// looksLikeEditInstruction is the cheap pre-filter for post-submission
// input; anything imperative about the ticket fields goes to the edit path.
func looksLikeEditInstruction(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, v := range editVerbs {
		if strings.HasPrefix(lower, v) {
			return true
		}
	}
	return strings.Contains(lower, "title") || strings.Contains(lower, "category") || strings.Contains(lower, "description")
}

func turnFingerprint(userText string, seq int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s", seq, userText)))
	return hex.EncodeToString(sum[:])
}
