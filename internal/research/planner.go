package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var plannerTracer = otel.Tracer("deepscout/research/planner")

// Planner turns a topic into a search plan
type Planner struct {
	llm    LLMProvider
	model  string
	logger *log.Logger
}

// NewPlanner creates a new planner instance
func NewPlanner(llm LLMProvider, model string) *Planner {
	return &Planner{
		llm:    llm,
		model:  model,
		logger: log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
	}
}

// Plan asks the LLM for a search plan and parses its response
func (p *Planner) Plan(ctx context.Context, topic string, now time.Time) (SearchPlan, error) {
	ctx, span := plannerTracer.Start(ctx, "planner.plan")
	defer span.End()
	span.SetAttributes(attribute.String("topic", topic))

	startTime := time.Now()

	response, err := p.llm.Complete(ctx, plannerPersona, planningPrompt(topic, now), p.model, map[string]interface{}{
		"temperature": 0.3, // lower temperature for more consistent planning
		"max_tokens":  2000,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "planning completion failed")
		return SearchPlan{}, fmt.Errorf("failed to generate plan: %w", err)
	}

	plan, err := parsePlanResponse(response)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "plan parse failed")
		return SearchPlan{}, err
	}

	if err := plan.Validate(); err != nil {
		parseErr := &PlanParseError{Reason: err.Error(), Raw: response}
		span.RecordError(parseErr)
		span.SetStatus(codes.Error, "plan validation failed")
		return SearchPlan{}, parseErr
	}

	p.logger.Printf("Planning completed in %v with %d queries", time.Since(startTime), len(plan.Queries))
	span.SetAttributes(attribute.Int("queries", len(plan.Queries)))
	return plan, nil
}

// parsePlanResponse extracts the first top-level JSON object from the
// response text using balanced brace scanning and unmarshals it.
func parsePlanResponse(response string) (SearchPlan, error) {
	jsonStr := ""
	start := -1
	depth := 0
	for i, ch := range response {
		if ch == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if ch == '}' {
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				jsonStr = response[start : i+1]
				break
			}
		}
	}
	if jsonStr == "" {
		return SearchPlan{}, &PlanParseError{Reason: "no JSON object found in response", Raw: response}
	}

	var plan SearchPlan
	if err := json.Unmarshal([]byte(jsonStr), &plan); err != nil {
		return SearchPlan{}, &PlanParseError{Reason: fmt.Sprintf("invalid plan JSON: %v", err), Raw: response}
	}
	return plan, nil
}
