// Package cmd implements the crawld CLI: environment-driven configuration
// of the shared process state, one optional immediate enqueue, and a
// blocking run until shutdown.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/antsinar/crawlerapi/codec"
	"github.com/antsinar/crawlerapi/crawler"
	"github.com/antsinar/crawlerapi/env"
	"github.com/antsinar/crawlerapi/queue"
	"github.com/antsinar/crawlerapi/state"
)

var (
	enqueueURL   string
	compressorID string
	maxDepth     int
	requestLimit int
)

// rootCmd boots the crawler daemon: it wires env-derived configuration into
// state.New, starts the task queue and graph watcher, admits one crawl task
// if --url was given, and blocks until an OS signal tears everything down.
var rootCmd = &cobra.Command{
	Use:   "crawld",
	Short: "Single-domain web crawler daemon",
	Long: `crawld runs the crawler core's background loops in a single process:
the bounded task queue, the graph info cache updater, and the graph
cleaner, on the schedule and paths configured by environment variables.

With --url it additionally admits one crawl task at startup; without it,
crawld runs the background loops only. The task queue is in-memory, so no
other process can enqueue into it; the info updater and cleaner still act
on graph files that appear in GRAPH_ROOT.`,
	RunE: run,
}

// Execute runs the root command. It is called once from main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVar(&enqueueURL, "url", "", "admit one crawl task for this URL at startup")
	rootCmd.Flags().StringVar(&compressorID, "compressor", "", "override GRAPH_COMPRESSOR for the --url task")
	rootCmd.Flags().IntVar(&maxDepth, "depth", 0, "override CRAWL_MAX_DEPTH for the --url task (use -1 for engine default)")
	rootCmd.Flags().IntVar(&requestLimit, "request-limit", 0, "override CRAWL_REQUEST_LIMIT for the --url task")
}

func run(cmd *cobra.Command, args []string) error {
	cfg := ConfigFromEnv()

	s, teardown, err := state.New(cfg)
	if err != nil {
		return fmt.Errorf("crawld: %w", err)
	}
	defer teardown()

	fmt.Fprintf(os.Stdout, "crawld: env=%s graph_root=%s compressor=%s queue_capacity=%d\n",
		cfg.Env, cfg.GraphRoot, cfg.Compressor, cfg.QueueCapacity)

	if enqueueURL != "" {
		task := queue.CrawlTask{
			URL:          enqueueURL,
			CompressorID: resolveCompressor(cfg.Compressor),
			CrawlDepth:   queue.DefaultCrawlDepth,
			RequestLimit: requestLimit,
		}
		if cmd.Flags().Changed("depth") {
			task.CrawlDepth = maxDepth
		}
		status, err := s.Queue.Enqueue(task)
		if err != nil {
			return fmt.Errorf("crawld: enqueue %s: %w", enqueueURL, err)
		}
		fmt.Fprintf(os.Stdout, "crawld: enqueue %s -> %s\n", enqueueURL, status)
	}

	<-s.Stopped()
	fmt.Fprintln(os.Stdout, "crawld: stopped")
	return nil
}

func resolveCompressor(fallback codec.ID) codec.ID {
	if compressorID == "" {
		return fallback
	}
	return codec.ID(compressorID)
}

// ConfigFromEnv builds a state.Config from the environment variables §6
// names: ENV, GRAPH_ROOT, plus the compressor/depth/request-limit/capacity
// defaults.
func ConfigFromEnv() state.Config {
	compressor := codec.ID(env.GetEnv("GRAPH_COMPRESSOR", string(codec.GZIP)))
	if !codec.Valid(compressor) {
		fmt.Fprintf(os.Stderr, "crawld: unknown GRAPH_COMPRESSOR %q, falling back to gzip\n", compressor)
		compressor = codec.GZIP
	}

	settings := crawler.DefaultSettings()
	settings.MaxDepth = env.GetEnvAsInt("CRAWL_MAX_DEPTH", settings.MaxDepth)
	settings.RequestLimit = env.GetEnvAsInt("CRAWL_REQUEST_LIMIT", settings.RequestLimit)
	settings.FetchTimeout = env.GetEnvAsDuration("CRAWL_FETCH_TIMEOUT", settings.FetchTimeout)

	return state.Config{
		Env:              env.GetEnv("ENV", "development"),
		GraphRoot:        env.GetEnv("GRAPH_ROOT", "./graphs"),
		Compressor:       compressor,
		QueueCapacity:    env.GetEnvAsInt("QUEUE_CAPACITY", 4),
		CrawlSettings:    settings,
		ScheduleInterval: env.GetEnvAsDuration("SCHEDULE_INTERVAL", 5*time.Minute),
		ShutdownGrace:    env.GetEnvAsDuration("SHUTDOWN_GRACE", 30*time.Second),
	}
}
