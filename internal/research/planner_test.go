package research

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type stubLLM struct {
	response string
	err      error
	lastSys  string
	lastUser string
}

func (s *stubLLM) Complete(ctx context.Context, persona, prompt, model string, options map[string]interface{}) (string, error) {
	s.lastSys = persona
	s.lastUser = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func TestParsePlanResponseNoJSON(t *testing.T) {
	_, err := parsePlanResponse("I could not produce a plan, sorry.")
	var perr *PlanParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PlanParseError, got %v", err)
	}
	if !strings.Contains(perr.Reason, "no JSON object") {
		t.Fatalf("unexpected reason: %s", perr.Reason)
	}
}

func TestParsePlanResponseMalformedJSON(t *testing.T) {
	_, err := parsePlanResponse(`{"queries": ["a", }`)
	var perr *PlanParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PlanParseError, got %v", err)
	}
}

func TestParsePlanResponseExtractsFirstObject(t *testing.T) {
	payload := `Here is the plan you asked for:
{"queries": ["quantum error correction basics", "surface codes 2025"], "searchTypes": ["neural", "keyword"], "reasoning": "coverage"}
Let me know if you need changes. {"ignored": true}`
	plan, err := parsePlanResponse(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Queries) != 2 {
		t.Fatalf("expected 2 queries, got %d", len(plan.Queries))
	}
	if plan.SearchTypes[1] != "keyword" {
		t.Fatalf("unexpected search types: %v", plan.SearchTypes)
	}
}

func TestPlanValidateMismatchedLengths(t *testing.T) {
	plan := SearchPlan{Queries: []string{"a", "b"}, SearchTypes: []string{"neural"}}
	if err := plan.Validate(); err == nil || !strings.Contains(err.Error(), "search types") {
		t.Fatalf("expected length mismatch error, got %v", err)
	}
}

func TestPlanValidateTimeSensitiveRequiresDateRange(t *testing.T) {
	plan := SearchPlan{Queries: []string{"a"}, SearchTypes: []string{"neural"}, IsTimeSensitive: true}
	if err := plan.Validate(); err == nil || !strings.Contains(err.Error(), "date range") {
		t.Fatalf("expected date range error, got %v", err)
	}

	plan.DateRange = &DateRange{StartDate: "2026-08-01", EndDate: "2026-07-01"}
	if err := plan.Validate(); err == nil || !strings.Contains(err.Error(), "after end") {
		t.Fatalf("expected ordering error, got %v", err)
	}

	plan.DateRange = &DateRange{StartDate: "2026-07-01", EndDate: "2026-08-01"}
	if err := plan.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPlanValidateRejectsUnknownSearchType(t *testing.T) {
	plan := SearchPlan{Queries: []string{"a"}, SearchTypes: []string{"semantic"}}
	if err := plan.Validate(); err == nil || !strings.Contains(err.Error(), "neural or keyword") {
		t.Fatalf("expected search type error, got %v", err)
	}
}

func TestPlannerPlanReturnsParseErrorForProse(t *testing.T) {
	llm := &stubLLM{response: "no structured output here"}
	planner := NewPlanner(llm, "test-model")

	_, err := planner.Plan(context.Background(), "quantum error correction", time.Now())
	var perr *PlanParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PlanParseError, got %v", err)
	}
}

func TestPlannerPlanWrapsCompletionError(t *testing.T) {
	llm := &stubLLM{err: errors.New("upstream down")}
	planner := NewPlanner(llm, "test-model")

	_, err := planner.Plan(context.Background(), "quantum error correction", time.Now())
	if err == nil || !strings.Contains(err.Error(), "failed to generate plan") {
		t.Fatalf("expected wrapped completion error, got %v", err)
	}
}

func TestPlannerPromptEmbedsTopicAndDate(t *testing.T) {
	llm := &stubLLM{response: `{"queries":["q"],"searchTypes":["neural"]}`}
	planner := NewPlanner(llm, "test-model")

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	if _, err := planner.Plan(context.Background(), "fusion startups", now); err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !strings.Contains(llm.lastUser, "fusion startups") {
		t.Fatalf("prompt missing topic: %s", llm.lastUser)
	}
	if !strings.Contains(llm.lastUser, "2026-08-30") {
		t.Fatalf("prompt missing current date: %s", llm.lastUser)
	}
	if llm.lastSys == "" {
		t.Fatalf("expected a planning persona to be set")
	}
}
