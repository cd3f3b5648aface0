package research

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/deepscout/internal/telemetry"
)

var pipelineTracer = otel.Tracer("deepscout/research/pipeline")

// Pipeline sequences the planning, searching and writing stages for one
// research session. Each stage's output is the next stage's sole input.
type Pipeline struct {
	planner   *Planner
	searcher  *Searcher
	writer    *Writer
	telemetry *telemetry.Telemetry
	logger    *log.Logger
	now       func() time.Time
}

// NewPipeline wires the three stage executors together.
func NewPipeline(planner *Planner, searcher *Searcher, writer *Writer, tel *telemetry.Telemetry) *Pipeline {
	return &Pipeline{
		planner:   planner,
		searcher:  searcher,
		writer:    writer,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags),
		now:       time.Now,
	}
}

// Run drives one research session to completion, emitting pipeline events
// through emit in order. A cancelled context leaves the session idle and
// emits nothing further. The returned session reflects the terminal state.
func (p *Pipeline) Run(ctx context.Context, topic string, emit func(Event)) (*Session, error) {
	ctx, span := pipelineTracer.Start(ctx, "pipeline.run")
	defer span.End()
	span.SetAttributes(attribute.String("topic", topic))

	session := NewSession(topic)
	if err := ValidateTopic(topic); err != nil {
		session.Status = SessionError
		session.Error = err.Error()
		return session, err
	}

	session.Status = SessionRunning
	session.StartedAt = p.now()
	p.telemetry.SessionStarted()
	p.logger.Printf("session %s started: %q", session.ID, topic)

	// Planning
	plan, err := p.runPlanning(ctx, session, emit)
	if err != nil {
		return p.finishWithError(ctx, session, StagePlanning, err, emit)
	}

	// Searching
	contents, err := p.runSearching(ctx, session, plan, emit)
	if err != nil {
		return p.finishWithError(ctx, session, StageSearching, err, emit)
	}

	// Writing
	report, err := p.runWriting(ctx, session, contents, emit)
	if err != nil {
		return p.finishWithError(ctx, session, StageWriting, err, emit)
	}

	session.Report = report
	session.Status = SessionCompleted
	session.CompletedAt = p.now()
	p.telemetry.SessionCompleted(session.CompletedAt.Sub(session.StartedAt))
	emit(resultEvent(report, session.Sources.List()))
	p.logger.Printf("session %s completed with %d sources", session.ID, session.Sources.Len())
	return session, nil
}

func (p *Pipeline) runPlanning(ctx context.Context, session *Session, emit func(Event)) (SearchPlan, error) {
	p.startStage(session, StagePlanning, emit, "Decomposing topic into search queries")
	plan, err := p.planner.Plan(ctx, session.Topic, p.now())
	if err != nil {
		return SearchPlan{}, err
	}
	emit(statusEvent(StagePlanning, fmt.Sprintf("Planned %d search queries", len(plan.Queries))))
	p.completeStage(session, StagePlanning, emit, "")
	return plan, nil
}

func (p *Pipeline) runSearching(ctx context.Context, session *Session, plan SearchPlan, emit func(Event)) ([]string, error) {
	p.startStage(session, StageSearching, emit, "Searching the web")
	contents, err := p.searcher.Run(ctx, plan, session.Sources, emit)
	if err != nil {
		return nil, err
	}
	p.completeStage(session, StageSearching, emit, fmt.Sprintf("Found %d sources, fetched %d documents", session.Sources.Len(), len(contents)))
	return contents, nil
}

func (p *Pipeline) runWriting(ctx context.Context, session *Session, contents []string, emit func(Event)) (string, error) {
	p.startStage(session, StageWriting, emit, "Writing the report")
	report, err := p.writer.Write(ctx, session.Topic, session.Sources.List(), contents)
	if err != nil {
		return "", err
	}
	p.completeStage(session, StageWriting, emit, "")
	return report, nil
}

func (p *Pipeline) startStage(session *Session, stage Stage, emit func(Event), message string) {
	sp := session.Stages[stage]
	sp.Status = StageActive
	sp.Message = message
	sp.StartedAt = p.now()
	emit(stageChangeEvent(stage, StageActive, message))
}

func (p *Pipeline) completeStage(session *Session, stage Stage, emit func(Event), message string) {
	sp := session.Stages[stage]
	sp.Status = StageDone
	if message != "" {
		sp.Message = message
	}
	sp.CompletedAt = p.now()
	p.telemetry.StageCompleted(string(stage), sp.CompletedAt.Sub(sp.StartedAt))
	emit(stageChangeEvent(stage, StageDone, message))
}

// finishWithError marks the failing stage and the session terminal. A
// cancelled context instead returns the session to idle without emitting.
func (p *Pipeline) finishWithError(ctx context.Context, session *Session, stage Stage, err error, emit func(Event)) (*Session, error) {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		session.Status = SessionIdle
		p.logger.Printf("session %s cancelled during %s", session.ID, stage)
		return session, err
	}

	sp := session.Stages[stage]
	sp.Status = StageFailed
	sp.Message = err.Error()
	sp.CompletedAt = p.now()
	session.Status = SessionError
	session.Error = err.Error()
	session.CompletedAt = p.now()
	p.telemetry.SessionFailed(string(stage))

	emit(stageChangeEvent(stage, StageFailed, err.Error()))
	emit(errorEvent(stage, err.Error()))
	p.logger.Printf("session %s failed during %s: %v", session.ID, stage, err)

	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(stage)+" failed")
	return session, err
}
