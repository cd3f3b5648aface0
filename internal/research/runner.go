package research

import "context"

// Runner is the uniform streaming interface the transport consumes,
// regardless of execution mode.
type Runner interface {
	// Run starts a research session for topic and returns a channel of
	// pipeline events. The channel is closed after the terminal event, or
	// without one if the context is cancelled first.
	Run(ctx context.Context, topic string) (<-chan Event, error)
}

// LocalRunner executes the pipeline in-process.
type LocalRunner struct {
	pipeline *Pipeline
}

func NewLocalRunner(p *Pipeline) *LocalRunner {
	return &LocalRunner{pipeline: p}
}

func (r *LocalRunner) Run(ctx context.Context, topic string) (<-chan Event, error) {
	if err := ValidateTopic(topic); err != nil {
		return nil, err
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		emit := func(ev Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}
		_, _ = r.pipeline.Run(ctx, topic, emit)
	}()
	return events, nil
}
