package planner

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"

	"ai-supportdesk-be/pkg/dialogue"
	"ai-supportdesk-be/pkg/llm"
)

type fakeLLM struct {
	response string
	err      error
}

func (f *fakeLLM) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	return f.response, f.err
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return f.response, f.err
}

func (f *fakeLLM) GenerateStream(ctx context.Context, prompt string, onToken llm.TokenFunc, options ...llm.Option) (string, error) {
	return f.response, f.err
}

func testLogger() *log.Logger {
	return log.New(os.Stdout, "", 0)
}

func TestDecideParsesModelPlan(t *testing.T) {
	p := NewPlanner(&fakeLLM{
		response: `Thinking... {"action": "retrieve", "query": "reset password", "kind": "Lexical", "reasoning": "r"}`,
	}, DefaultBudgets(), testLogger())
	sess := dialogue.NewSession("s", "u")

	plan, err := p.Decide(context.Background(), sess, "how do I reset my password?")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if plan.Action != ActionRetrieve {
		t.Errorf("Action = %q, want %q (case normalized)", plan.Action, ActionRetrieve)
	}
	if plan.Kind != "lexical" {
		t.Errorf("Kind = %q, want lexical", plan.Kind)
	}
	if plan.Forced {
		t.Error("in-budget plan must not be marked forced")
	}
}

func TestDecideDefaultsKindToBoth(t *testing.T) {
	p := NewPlanner(&fakeLLM{
		response: `{"action": "RETRIEVE", "query": "reset password"}`,
	}, DefaultBudgets(), testLogger())
	sess := dialogue.NewSession("s", "u")

	plan, err := p.Decide(context.Background(), sess, "q")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if plan.Kind != "both" {
		t.Errorf("Kind = %q, want both", plan.Kind)
	}
}

func TestDecideFallbackOnUnparseableResponse(t *testing.T) {
	p := NewPlanner(&fakeLLM{response: "I think we should search for something"}, DefaultBudgets(), testLogger())
	sess := dialogue.NewSession("s", "u")

	plan, err := p.Decide(context.Background(), sess, "how do I reset my password?")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if plan.Action != ActionRetrieve {
		t.Errorf("Action = %q, want fallback RETRIEVE with no evidence", plan.Action)
	}
	if plan.Query != "how do I reset my password?" {
		t.Errorf("fallback Query = %q, want the question itself", plan.Query)
	}
}

func TestDecideBudgetExhausted(t *testing.T) {
	tests := []struct {
		name       string
		evidence   []dialogue.RetrievedPassage
		wantAction string
	}{
		{"no evidence escalates", nil, ActionTicket},
		{"evidence answers", []dialogue.RetrievedPassage{{ID: "p-1", Text: "t"}}, ActionAnswer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPlanner(&fakeLLM{err: errors.New("must not be called")}, Budgets{MaxRetrievals: 2, MaxClarifications: 1}, testLogger())
			sess := dialogue.NewSession("s", "u")
			sess.RetrievalAttempts = 2
			sess.Evidence = tt.evidence

			plan, err := p.Decide(context.Background(), sess, "q")
			if err != nil {
				t.Fatalf("Decide: %v", err)
			}
			if plan.Action != tt.wantAction {
				t.Errorf("Action = %q, want %q", plan.Action, tt.wantAction)
			}
			if !plan.Forced {
				t.Error("budget override must be marked forced")
			}
		})
	}
}

func TestDecideOverridesDuplicateQuery(t *testing.T) {
	p := NewPlanner(&fakeLLM{
		response: `{"action": "RETRIEVE", "query": "Reset Password", "kind": "both"}`,
	}, DefaultBudgets(), testLogger())
	sess := dialogue.NewSession("s", "u")
	sess.RetrievalAttempts = 1
	sess.MarkQueryIssued("reset password")
	sess.Evidence = []dialogue.RetrievedPassage{{ID: "p-1", Text: "t"}}

	plan, err := p.Decide(context.Background(), sess, "q")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if plan.Action != ActionAnswer || !plan.Forced {
		t.Errorf("plan = %+v, want forced ANSWER for duplicate sub-query", plan)
	}
}

func TestDecideOverridesSecondClarification(t *testing.T) {
	p := NewPlanner(&fakeLLM{
		response: `{"action": "CLARIFY", "question": "Which one?", "options": ["A", "B"]}`,
	}, DefaultBudgets(), testLogger())
	sess := dialogue.NewSession("s", "u")
	sess.ClarificationsAsked = 1
	sess.RetrievalAttempts = 1

	plan, err := p.Decide(context.Background(), sess, "q")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if plan.Action == ActionClarify {
		t.Error("second clarification in one cycle must be overridden")
	}
	if !plan.Forced {
		t.Error("clarification override must be marked forced")
	}
}

func TestDecideModelFailure(t *testing.T) {
	p := NewPlanner(&fakeLLM{err: errors.New("model down")}, DefaultBudgets(), testLogger())
	sess := dialogue.NewSession("s", "u")

	_, err := p.Decide(context.Background(), sess, "q")
	if !dialogue.IsLanguageModelError(err) {
		t.Errorf("err = %v, want LanguageModelError", err)
	}
}

func TestCheckRelated(t *testing.T) {
	tests := []struct {
		name     string
		response string
		err      error
		want     bool
	}{
		{"yes", "YES", nil, true},
		{"no", "NO", nil, false},
		{"lowercase no", "no, unrelated", nil, false},
		{"failure defaults to related", "", errors.New("down"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPlanner(&fakeLLM{response: tt.response, err: tt.err}, DefaultBudgets(), testLogger())
			if got := p.CheckRelated(context.Background(), "prompt"); got != tt.want {
				t.Errorf("CheckRelated = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRouteAfterCapability(t *testing.T) {
	tests := []struct {
		name     string
		response string
		err      error
		want     string
	}{
		{"ticket", "TICKET", nil, "ticket"},
		{"message", "MESSAGE", nil, "message"},
		{"failure defaults to message", "", errors.New("down"), "message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPlanner(&fakeLLM{response: tt.response, err: tt.err}, DefaultBudgets(), testLogger())
			if got := p.RouteAfterCapability(context.Background(), "yes please"); got != tt.want {
				t.Errorf("RouteAfterCapability = %q, want %q", got, tt.want)
			}
		})
	}
}
