package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/deepscout/config"
	"github.com/mohammad-safakhou/deepscout/internal/fetch"
	"github.com/mohammad-safakhou/deepscout/internal/research"
	"github.com/mohammad-safakhou/deepscout/internal/search"
	"github.com/mohammad-safakhou/deepscout/internal/telemetry"
)

// researchCMD runs one pipeline from the terminal, printing events as they
// arrive. Useful for smoke-testing credentials and prompts without the
// HTTP server.
func researchCMD() *cobra.Command {
	var cfgPath string
	var runCmd = &cobra.Command{
		Use:   "research <topic>",
		Short: "Run one research session locally and print its events",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			topic := strings.Join(args, " ")
			if err := cfg.Creds(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			llm, err := research.NewLLMProvider(cfg.LLM)
			if err != nil {
				return err
			}
			var extractor research.ContentExtractor
			if cfg.Fetch.Enabled {
				extractor = fetch.NewExtractor(cfg.Fetch)
			}
			tele := telemetry.NewTelemetry(cfg.Telemetry)
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

			runner := research.NewLocalRunner(pipeline)
			events, err := runner.Run(ctx, topic)
			if err != nil {
				return err
			}

			logger := log.New(os.Stderr, "[RESEARCH] ", log.LstdFlags)
			var report string
			for ev := range events {
				switch ev.Type {
				case research.EventResult:
					if d, ok := ev.Data.(research.ResultData); ok {
						report = d.Report
					}
				case research.EventError:
					if d, ok := ev.Data.(research.ErrorData); ok {
						return fmt.Errorf("research failed: %s", d.Message)
					}
				default:
					logger.Printf("%s: %+v", ev.Type, ev.Data)
				}
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Println(report)
			return nil
		},
	}
	runCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return runCmd
}
