package server

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mohammad-safakhou/deepscout/config"
	"github.com/mohammad-safakhou/deepscout/internal/fetch"
	"github.com/mohammad-safakhou/deepscout/internal/research"
	"github.com/mohammad-safakhou/deepscout/internal/sandbox"
	"github.com/mohammad-safakhou/deepscout/internal/search"
	"github.com/mohammad-safakhou/deepscout/internal/telemetry"
)

// newRouter builds the echo instance with recovery, CORS and a unified
// HTTP error handler producing structured JSON.
func newRouter() (*echo.Echo, *log.Logger) {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))
	return e, baseLogger
}

// Run wires the service together and starts the HTTP server.
func Run(cfg *config.Config, addr string) error {
	e, baseLogger := newRouter()

	tele := telemetry.NewTelemetry(cfg.Telemetry)

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(tele.Handler()))

	runner, mode, err := buildRunner(cfg, tele)
	if err != nil {
		return err
	}
	baseLogger.Printf("execution mode: %s", mode)

	rh := &ResearchHandler{Cfg: cfg, Runner: runner}
	rh.Register(e)

	if addr == "" {
		addr = cfg.Server.Address
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

// buildRunner selects and constructs the execution path for this process.
func buildRunner(cfg *config.Config, tele *telemetry.Telemetry) (research.Runner, research.Mode, error) {
	mode := research.DecideMode(cfg.Sandbox, os.Getenv)
	if mode == research.ModeRemote {
		return sandbox.NewRemoteRunner(sandbox.NewDockerProvider(), cfg, tele), mode, nil
	}

	llm, err := research.NewLLMProvider(cfg.LLM)
	if err != nil {
		return nil, mode, err
	}
	var extractor research.ContentExtractor
	if cfg.Fetch.Enabled {
		extractor = fetch.NewExtractor(cfg.Fetch)
	}
	pipeline := research.NewPipeline(
		research.NewPlanner(llm, cfg.LLM.Model("planning")),
		research.NewSearcher(search.NewClient(cfg.Search), extractor, tele, research.SearcherOptions{
			ResultsPerQuery: cfg.Search.ResultsPerQuery,
			MaxContentFetch: cfg.Search.MaxContentFetch,
			MaxContentChars: cfg.Search.MaxContentChars,
			SnippetChars:    cfg.Search.SnippetChars,
		}),
		research.NewWriter(llm, cfg.LLM.Model("writing")),
		tele,
	)
	return research.NewLocalRunner(pipeline), mode, nil
}
