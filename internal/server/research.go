package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mohammad-safakhou/deepscout/config"
	"github.com/mohammad-safakhou/deepscout/internal/research"
)

var researchTracer = otel.Tracer("deepscout/server/research")

// ResearchHandler serves the research SSE endpoint.
type ResearchHandler struct {
	Cfg    *config.Config
	Runner research.Runner
}

func (h *ResearchHandler) Register(e *echo.Echo) {
	e.POST("/research", h.stream)
}

type researchRequest struct {
	Topic string `json:"topic"`
}

// stream validates the request and streams pipeline events to the client
// as server-sent events, closing with a [DONE] sentinel.
func (h *ResearchHandler) stream(c echo.Context) error {
	req := c.Request()
	ctx := req.Context()
	ctx, span := researchTracer.Start(ctx, "ResearchHandler.stream")
	defer span.End()
	c.SetRequest(req.WithContext(ctx))

	var body researchRequest
	if err := c.Bind(&body); err != nil {
		span.SetStatus(codes.Error, "malformed body")
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	topic := strings.TrimSpace(body.Topic)
	if err := research.ValidateTopic(topic); err != nil {
		span.SetStatus(codes.Error, "topic rejected")
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	span.SetAttributes(attribute.String("topic", topic))

	if err := h.Cfg.Creds(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing credentials")
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	events, err := h.Runner.Run(ctx, topic)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		span.SetStatus(codes.Error, "streaming unsupported")
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}

	send := func(payload string) error {
		if _, err := resp.Write([]byte("data: " + payload + "\n\n")); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			// Client went away; the runner observes the same context.
			return nil
		case ev, open := <-events:
			if !open {
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				span.RecordError(err)
				continue
			}
			if err := send(string(data)); err != nil {
				span.RecordError(err)
				return nil
			}
			if ev.IsTerminal() {
				// Drain is unnecessary: terminal events are the last emitted.
				if err := send("[DONE]"); err != nil {
					span.RecordError(err)
				}
				return nil
			}
		}
	}
}
