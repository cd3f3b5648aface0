package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcexec "github.com/testcontainers/testcontainers-go/exec"
)

// startMarker is the file whose appearance releases the held main program.
const startMarker = ".start"

// DockerProvider provisions throwaway Docker containers.
type DockerProvider struct {
	logger *log.Logger
}

func NewDockerProvider() *DockerProvider {
	return &DockerProvider{logger: log.New(log.Writer(), "[SANDBOX] ", log.LstdFlags)}
}

// Provision starts a container whose main process waits for the start
// marker before exec'ing spec.Cmd. Running the program as pid 1 routes its
// stdout through the container log stream, which a log consumer follows
// live; exec'd commands in this testcontainers version only surface output
// after they finish. Credentials are injected as container environment
// variables.
func (p *DockerProvider) Provision(ctx context.Context, spec Spec) (Handle, error) {
	workDir := spec.WorkDir
	if workDir == "" {
		workDir = "/app"
	}
	marker := path.Join(workDir, startMarker)
	shell := fmt.Sprintf("while [ ! -f %s ]; do sleep 0.2; done; exec %s", marker, strings.Join(spec.Cmd, " "))
	req := testcontainers.ContainerRequest{
		Image:      spec.Image,
		Env:        spec.Env,
		WorkingDir: workDir,
		Cmd:        []string{"sh", "-c", shell},
	}
	if spec.OnLine != nil {
		req.LogConsumerCfg = &testcontainers.LogConsumerConfig{
			Consumers: []testcontainers.LogConsumer{&lineConsumer{onLine: spec.OnLine}},
		}
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("provision container: %w", err)
	}
	p.logger.Printf("provisioned container for image %s", spec.Image)
	return &dockerHandle{container: container, workDir: workDir, logger: p.logger}, nil
}

// lineConsumer splits the container log stream into lines and forwards
// them in order. Accept is invoked sequentially by the log producer.
type lineConsumer struct {
	onLine func(string)
	buf    []byte
}

func (c *lineConsumer) Accept(l testcontainers.Log) {
	c.buf = append(c.buf, l.Content...)
	for {
		i := bytes.IndexByte(c.buf, '\n')
		if i < 0 {
			return
		}
		line := strings.TrimSuffix(string(c.buf[:i]), "\r")
		c.buf = c.buf[i+1:]
		c.onLine(line)
	}
}

type dockerHandle struct {
	container testcontainers.Container
	workDir   string
	logger    *log.Logger
	stopped   bool
}

func (h *dockerHandle) WriteFiles(ctx context.Context, files map[string][]byte) error {
	for name, content := range files {
		dest := path.Join(h.workDir, name)
		if err := h.container.CopyToContainer(ctx, content, dest, 0o644); err != nil {
			return fmt.Errorf("copy %s: %w", name, err)
		}
	}
	return nil
}

func (h *dockerHandle) Exec(ctx context.Context, cmd []string, timeout time.Duration) (ExecResult, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	code, reader, err := h.container.Exec(runCtx, cmd, tcexec.Multiplexed())
	if err != nil {
		if runCtx.Err() != nil {
			return ExecResult{}, fmt.Errorf("%s timed out after %v", strings.Join(cmd, " "), timeout)
		}
		return ExecResult{}, fmt.Errorf("exec %s: %w", strings.Join(cmd, " "), err)
	}

	var out strings.Builder
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		out.WriteString(scanner.Text())
		out.WriteString("\n")
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		h.logger.Printf("Warning: reading exec output: %v", err)
	}
	return ExecResult{ExitCode: code, Output: out.String()}, nil
}

func (h *dockerHandle) Release(ctx context.Context) error {
	dest := path.Join(h.workDir, startMarker)
	if err := h.container.CopyToContainer(ctx, []byte("go\n"), dest, 0o644); err != nil {
		return fmt.Errorf("release: %w", err)
	}
	return nil
}

func (h *dockerHandle) Wait(ctx context.Context, timeout time.Duration) (int, error) {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		state, err := h.container.State(waitCtx)
		if err != nil {
			if waitCtx.Err() != nil {
				return 0, fmt.Errorf("sandbox program timed out after %v", timeout)
			}
			return 0, fmt.Errorf("container state: %w", err)
		}
		if !state.Running {
			return state.ExitCode, nil
		}
		select {
		case <-ticker.C:
		case <-waitCtx.Done():
			return 0, fmt.Errorf("sandbox program timed out after %v", timeout)
		}
	}
}

func (h *dockerHandle) Stop(ctx context.Context) error {
	if h.stopped {
		return nil
	}
	h.stopped = true
	return h.container.Terminate(ctx)
}
