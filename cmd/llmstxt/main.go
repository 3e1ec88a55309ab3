package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"llmstxt-crawler/internal/app"
	"llmstxt-crawler/internal/crawler"
	"llmstxt-crawler/internal/logging"
	"llmstxt-crawler/internal/synth"
	"llmstxt-crawler/pkg/types"
)

type crawlFlags struct {
	configPath    string
	maxDepth      int
	include       []string
	exclude       []string
	outDir        string
	engine        string
	noAI          bool
	respectRobots bool
}

func main() {
	_ = godotenv.Load()
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "llmstxt",
		Short:         "Generate llms.txt and llms-full.txt for a website",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCrawlCommand())
	return root
}

func newCrawlCommand() *cobra.Command {
	var flags crawlFlags
	cmd := &cobra.Command{
		Use:   "crawl <url>",
		Short: "Crawl a site once and write both documents to the output directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd.Context(), args[0], flags)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.configPath, "config", "", "path to a YAML config file")
	f.IntVar(&flags.maxDepth, "max-depth", 0, "maximum link depth (config default when 0)")
	f.StringSliceVar(&flags.include, "include", nil, "URL glob patterns to crawl, * matches anything")
	f.StringSliceVar(&flags.exclude, "exclude", nil, "URL glob patterns to skip, checked after --include")
	f.StringVar(&flags.outDir, "out", ".", "directory for llms.txt and llms-full.txt")
	f.StringVar(&flags.engine, "engine", "", "rendering engine: chromedp, rod or http")
	f.BoolVar(&flags.noAI, "no-ai", false, "skip text generation and use the heuristic summary")
	f.BoolVar(&flags.respectRobots, "respect-robots", false, "skip URLs disallowed by robots.txt")
	return cmd
}

func runCrawl(parent context.Context, target string, flags crawlFlags) error {
	cfg, err := app.LoadConfig(flags.configPath, os.LookupEnv)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flags.engine != "" {
		cfg.Rendering.Engine = flags.engine
	}
	if flags.noAI {
		cfg.LLM.APIKey = ""
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	req := types.CrawlRequest{
		URL:              target,
		MaxDepth:         flags.maxDepth,
		IncludePatterns:  flags.include,
		ExcludePatterns:  flags.exclude,
		RespectRobotsTxt: flags.respectRobots,
	}
	if err := req.Validate(); err != nil {
		return err
	}

	engine, err := app.NewEngine(cfg, nil, logger)
	if err != nil {
		return err
	}
	synthesizer, err := app.NewSynthesizer(cfg.LLM, nil, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Jobs.Timeout.Duration)
	defer cancel()

	progress := crawler.ProgressFunc(func(ev crawler.ProgressEvent) {
		logger.Info("crawl progress",
			zap.String("phase", string(ev.Phase)),
			zap.Int("processed", ev.ProcessedPages),
			zap.Int("total", ev.TotalPages),
			zap.String("current", ev.CurrentPage),
		)
	})
	result, err := engine.Crawl(ctx, req, progress)
	if err != nil {
		return fmt.Errorf("crawl %s: %w", target, err)
	}
	for _, ce := range result.Errors {
		logger.Warn("page failed", zap.String("url", ce.URL), zap.String("error", ce.Error))
	}
	if len(result.Pages) == 0 {
		return fmt.Errorf("crawl %s: no pages with enough content", target)
	}

	content := synthesizer.Synthesize(ctx, req.URL, result.Pages)
	if err := os.MkdirAll(flags.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	files := map[string]string{
		"llms.txt":      synth.Summary(content),
		"llms-full.txt": synth.Full(content),
	}
	for name, body := range files {
		path := filepath.Join(flags.outDir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		logger.Info("wrote document", zap.String("path", path), zap.Int("bytes", len(body)))
	}
	logger.Info("crawl finished",
		zap.String("url", req.URL),
		zap.Int("pages", len(result.Pages)),
		zap.Int("errors", len(result.Errors)),
		zap.String("phase", string(result.Phase)),
	)
	return nil
}
