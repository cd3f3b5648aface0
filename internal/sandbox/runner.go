package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/deepscout/config"
	"github.com/mohammad-safakhou/deepscout/internal/research"
	"github.com/mohammad-safakhou/deepscout/internal/telemetry"
)

var runnerTracer = otel.Tracer("deepscout/sandbox/runner")

// RemoteRunner delegates a research session to a provisioned sandbox and
// forwards its protocol lines as pipeline events while the program runs.
type RemoteRunner struct {
	provider   Provider
	cfg        config.SandboxConfig
	llmKey     string
	llmModel   string
	searchKey  string
	searchURL  string
	telemetry  *telemetry.Telemetry
	logger     *log.Logger
	drainGrace time.Duration
}

// NewRemoteRunner builds a runner from the service configuration.
func NewRemoteRunner(provider Provider, cfg *config.Config, tel *telemetry.Telemetry) *RemoteRunner {
	llmKey := ""
	for _, p := range cfg.LLM.Providers {
		if p.APIKey != "" {
			llmKey = p.APIKey
			break
		}
	}
	return &RemoteRunner{
		provider:   provider,
		cfg:        cfg.Sandbox,
		llmKey:     llmKey,
		llmModel:   cfg.LLM.Model("writing"),
		searchKey:  cfg.Search.APIKey,
		searchURL:  cfg.Search.Endpoint,
		telemetry:  tel,
		logger:     log.New(log.Writer(), "[SANDBOX] ", log.LstdFlags),
		drainGrace: 2 * time.Second,
	}
}

// Run provisions a sandbox, transfers the generated program, installs its
// dependencies and executes it, translating stdout lines into events as
// they arrive. The sandbox is torn down in all cases.
func (r *RemoteRunner) Run(ctx context.Context, topic string) (<-chan research.Event, error) {
	if err := research.ValidateTopic(topic); err != nil {
		return nil, err
	}

	events := make(chan research.Event, 16)
	go func() {
		defer close(events)
		emit := func(ev research.Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}
		if err := r.execute(ctx, topic, emit); err != nil && ctx.Err() == nil {
			r.logger.Printf("remote session failed: %v", err)
		}
	}()
	return events, nil
}

// lineTracker records what the program's output stream has shown so far.
// Lines arrive on the log consumer goroutine while the runner waits.
type lineTracker struct {
	mu       sync.Mutex
	terminal bool
	tail     []string
}

const trackerTailLines = 100

func (t *lineTracker) observe(line string, isTerminal bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if isTerminal {
		t.terminal = true
	}
	t.tail = append(t.tail, line)
	if len(t.tail) > trackerTailLines {
		t.tail = t.tail[len(t.tail)-trackerTailLines:]
	}
}

func (t *lineTracker) sawTerminal() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.terminal
}

func (t *lineTracker) output() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.tail, "\n")
}

// awaitTerminal waits up to grace for a terminal line, covering the small
// lag between container exit and log delivery.
func (t *lineTracker) awaitTerminal(ctx context.Context, grace time.Duration) bool {
	deadline := time.Now().Add(grace)
	for {
		if t.sawTerminal() {
			return true
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return t.sawTerminal()
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func (r *RemoteRunner) execute(ctx context.Context, topic string, emit func(research.Event)) error {
	ctx, span := runnerTracer.Start(ctx, "sandbox.run")
	defer span.End()
	span.SetAttributes(attribute.String("image", r.cfg.Image))

	r.telemetry.SessionStarted()
	emit(research.Event{Type: research.EventStatus, Data: research.StatusData{Message: "Provisioning sandbox", Stage: research.StagePlanning}})

	tracker := &lineTracker{}
	onLine := func(line string) {
		ev, ok := DecodeLine(line)
		tracker.observe(line, ok && ev.IsTerminal())
		if !ok {
			return
		}
		emit(ev)
	}

	handle, err := r.provider.Provision(ctx, Spec{
		Image: r.cfg.Image,
		Cmd:   []string{"go", "run", "."},
		Env: map[string]string{
			"RESEARCH_TOPIC": topic,
			"OPENAI_API_KEY": r.llmKey,
			"OPENAI_MODEL":   r.llmModel,
			"EXA_API_KEY":    r.searchKey,
			"EXA_ENDPOINT":   r.searchURL,
			"GOFLAGS":        "-mod=mod",
		},
		OnLine: onLine,
	})
	if err != nil {
		return r.fatal(ctx, span, emit, fmt.Errorf("sandbox provisioning failed: %w", err))
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), r.cfg.InstallTimeout)
		defer cancel()
		if err := handle.Stop(stopCtx); err != nil {
			r.logger.Printf("Warning: sandbox teardown failed: %v", err)
		}
	}()

	if err := handle.WriteFiles(ctx, map[string][]byte{
		"main.go": []byte(remoteProgram),
		"go.mod":  []byte(remoteGoMod),
	}); err != nil {
		return r.fatal(ctx, span, emit, fmt.Errorf("sandbox file transfer failed: %w", err))
	}

	// Dependency installation has its own shorter bound.
	res, err := handle.Exec(ctx, []string{"go", "mod", "tidy"}, r.cfg.InstallTimeout)
	if err != nil {
		return r.fatal(ctx, span, emit, fmt.Errorf("dependency install failed: %w", err))
	}
	if res.ExitCode != 0 {
		return r.fatal(ctx, span, emit, &ExitError{Cmd: "go mod tidy", ExitCode: res.ExitCode, Output: res.Output})
	}

	if err := handle.Release(ctx); err != nil {
		return r.fatal(ctx, span, emit, fmt.Errorf("sandbox start failed: %w", err))
	}
	code, err := handle.Wait(ctx, r.cfg.RunTimeout)
	if err != nil {
		return r.fatal(ctx, span, emit, fmt.Errorf("sandbox run failed: %w", err))
	}

	if !tracker.awaitTerminal(ctx, r.drainGrace) {
		if code != 0 {
			return r.fatal(ctx, span, emit, &ExitError{Cmd: "go run", ExitCode: code, Output: tracker.output()})
		}
		return r.fatal(ctx, span, emit, errors.New("remote program exited without reporting a result"))
	}

	r.telemetry.SandboxRun(code == 0)
	return nil
}

// fatal surfaces one error event and never lets the fault escape the
// stream. Cancelled sessions emit nothing.
func (r *RemoteRunner) fatal(ctx context.Context, span trace.Span, emit func(research.Event), err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "remote execution failed")
	r.telemetry.SandboxRun(false)

	msg := err.Error()
	if ee, ok := err.(*ExitError); ok {
		msg = fmt.Sprintf("%s: %s", ee.Error(), tail(ee.Output, 2000))
	}
	emit(research.Event{Type: research.EventError, Data: research.ErrorData{Message: msg}})
	return err
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
