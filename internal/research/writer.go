package research

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var writerTracer = otel.Tracer("deepscout/research/writer")

// Writer synthesizes the final markdown report
type Writer struct {
	llm    LLMProvider
	model  string
	logger *log.Logger
}

// NewWriter creates a new writer instance
func NewWriter(llm LLMProvider, model string) *Writer {
	return &Writer{
		llm:    llm,
		model:  model,
		logger: log.New(log.Writer(), "[WRITER] ", log.LstdFlags),
	}
}

// Write produces the report from the accumulated sources and fetched texts
func (w *Writer) Write(ctx context.Context, topic string, sources []Source, contents []string) (string, error) {
	ctx, span := writerTracer.Start(ctx, "writer.write")
	defer span.End()
	span.SetAttributes(attribute.Int("sources", len(sources)), attribute.Int("documents", len(contents)))

	startTime := time.Now()

	report, err := w.llm.Complete(ctx, writerPersona, writingPrompt(topic, sources, contents), w.model, map[string]interface{}{
		"temperature": 0.7,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "report completion failed")
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	if strings.TrimSpace(report) == "" {
		err := fmt.Errorf("writer returned an empty report")
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty report")
		return "", err
	}

	w.logger.Printf("Report written in %v (%d chars)", time.Since(startTime), len(report))
	return report, nil
}
