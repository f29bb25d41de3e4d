package ticket

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"
	"testing"

	"ai-supportdesk-be/pkg/dialogue"
	"ai-supportdesk-be/pkg/llm"
)

// fakeLLM returns scripted responses in order.
type fakeLLM struct {
	responses []string
	err       error
	calls     int
}

func (f *fakeLLM) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	return f.next()
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return f.next()
}

func (f *fakeLLM) GenerateStream(ctx context.Context, prompt string, onToken llm.TokenFunc, options ...llm.Option) (string, error) {
	resp, err := f.next()
	if err != nil {
		return "", err
	}
	if err := onToken(resp); err != nil {
		return "", err
	}
	return resp, nil
}

func (f *fakeLLM) next() (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.calls >= len(f.responses) {
		return "", errors.New("fakeLLM: no more scripted responses")
	}
	resp := f.responses[f.calls]
	f.calls++
	return resp, nil
}

func testLogger() *log.Logger {
	return log.New(os.Stdout, "", 0)
}

func testSession() *dialogue.Session {
	sess := dialogue.NewSession("sess-1", "user-1")
	sess.History = append(sess.History,
		dialogue.NewUserMessage("my invoice is wrong"),
		dialogue.NewAssistantText("I could not find anything on that."),
	)
	sess.IssuedQueries = map[string]struct{}{"invoice wrong": {}}
	return sess
}

func TestBuildParsesModelResponse(t *testing.T) {
	provider := &fakeLLM{responses: []string{
		`Here is the ticket: {"category": "Billing", "title": "Incorrect invoice", "description": "User reports a wrong invoice amount."}`,
	}}
	n := NewNode(provider, testLogger())

	draft, err := n.Build(context.Background(), testSession(), "my invoice is wrong")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if draft.Category != "Billing" {
		t.Errorf("Category = %q, want Billing", draft.Category)
	}
	if draft.Title != "Incorrect invoice" {
		t.Errorf("Title = %q", draft.Title)
	}
	if draft.Submitted {
		t.Error("fresh draft must not be submitted")
	}
}

func TestBuildClampsCategory(t *testing.T) {
	provider := &fakeLLM{responses: []string{
		`{"category": "Billing And Invoicing Problems Department", "title": "t", "description": "d"}`,
	}}
	n := NewNode(provider, testLogger())

	draft, err := n.Build(context.Background(), testSession(), "q")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if draft.Category != "Billing And Invoicing" {
		t.Errorf("Category = %q, want at most three words", draft.Category)
	}
}

func TestBuildFallsBackOnUnparseableResponse(t *testing.T) {
	provider := &fakeLLM{responses: []string{"Sorry, I cannot produce JSON today."}}
	n := NewNode(provider, testLogger())

	longQuestion := strings.Repeat("my invoice is wrong and ", 10)
	draft, err := n.Build(context.Background(), testSession(), longQuestion)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if draft.Category != "General" {
		t.Errorf("fallback Category = %q, want General", draft.Category)
	}
	if len(draft.Title) > 80 {
		t.Errorf("fallback title length = %d, want <= 80", len(draft.Title))
	}
	if !strings.Contains(draft.Description, strings.TrimSpace(longQuestion)) {
		t.Error("fallback description must carry the original question")
	}
}

func TestBuildProviderFailure(t *testing.T) {
	provider := &fakeLLM{err: errors.New("model down")}
	n := NewNode(provider, testLogger())

	_, err := n.Build(context.Background(), testSession(), "q")
	var lmErr *dialogue.LanguageModelError
	if !errors.As(err, &lmErr) {
		t.Errorf("err = %v, want LanguageModelError", err)
	}
}

func TestSubmit(t *testing.T) {
	n := NewNode(&fakeLLM{}, testLogger())
	draft := &dialogue.TicketDraft{Category: "Billing", Title: "t", Description: "d"}

	if err := n.Submit(draft); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !draft.Submitted {
		t.Error("draft not marked submitted")
	}

	if err := n.Submit(draft); !errors.Is(err, dialogue.ErrTicketAlreadySubmitted) {
		t.Errorf("second Submit err = %v, want ErrTicketAlreadySubmitted", err)
	}
	if err := n.Submit(nil); !errors.Is(err, dialogue.ErrNoTicketDraft) {
		t.Errorf("nil Submit err = %v, want ErrNoTicketDraft", err)
	}
}

func TestApplyEditInstructionMergesOnlyReturnedFields(t *testing.T) {
	provider := &fakeLLM{responses: []string{`{"title": "Corrected title"}`}}
	n := NewNode(provider, testLogger())

	original := &dialogue.TicketDraft{
		Category:    "Billing",
		Title:       "Old title",
		Description: "Old description",
		Submitted:   true,
	}

	updated, err := n.ApplyEditInstruction(context.Background(), original, "fix the title")
	if err != nil {
		t.Fatalf("ApplyEditInstruction: %v", err)
	}
	if updated.Title != "Corrected title" {
		t.Errorf("Title = %q, want Corrected title", updated.Title)
	}
	if updated.Category != "Billing" || updated.Description != "Old description" {
		t.Errorf("untouched fields changed: %+v", updated)
	}
	if !updated.Submitted {
		t.Error("edit must preserve submitted flag")
	}
	if original.Title != "Old title" {
		t.Error("edit must not mutate the input draft")
	}
}

func TestApplyEditInstructionNilDraft(t *testing.T) {
	n := NewNode(&fakeLLM{}, testLogger())

	_, err := n.ApplyEditInstruction(context.Background(), nil, "change something")
	if !errors.Is(err, dialogue.ErrNoTicketDraft) {
		t.Errorf("err = %v, want ErrNoTicketDraft", err)
	}
}

func TestApplyEditInstructionUnparseableResponse(t *testing.T) {
	provider := &fakeLLM{responses: []string{"no json here"}}
	n := NewNode(provider, testLogger())

	draft := &dialogue.TicketDraft{Category: "Billing", Title: "t", Description: "d"}
	if _, err := n.ApplyEditInstruction(context.Background(), draft, "change it"); err == nil {
		t.Error("expected error for unparseable edit response")
	}
}
