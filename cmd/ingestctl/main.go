// ingestctl runs a single ingestion cycle, or resumes an interrupted one,
// and prints the resulting session summary as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"finfeed/internal/config"
	"finfeed/internal/svc"
	"finfeed/pkg/ingest"
)

var (
	configFile     = flag.String("f", "etc/finfeed.yaml", "path to the main config file")
	tickersFlag    = flag.String("tickers", "", "comma-separated tickers (defaults to ingest.tickers from config)")
	collectorsFlag = flag.String("collectors", "", "comma-separated collector names (defaults to all)")
	resumeFlag     = flag.String("resume", "", "resume the given session id instead of starting a new cycle")
	latestFlag     = flag.String("latest", "", "print the latest stored bar for the given ticker and exit")
	sourceFlag     = flag.String("source", "", "provider source for -latest")
	intervalFlag   = flag.String("interval", "1d", "bar interval for -latest")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Ldate | log.Ltime)

	appCfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("failed to load config %s: %v", *configFile, err)
	}

	svcCtx := svc.NewServiceContext(*appCfg)
	if svcCtx.Orchestrator == nil {
		log.Fatalf("postgres DSN is required: sessions and checkpoints must be durable")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *latestFlag != "" {
		printLatest(ctx, svcCtx)
		return
	}

	sum, err := run(ctx, svcCtx, appCfg)
	if sum != nil {
		out, merr := json.MarshalIndent(sum, "", "  ")
		if merr != nil {
			log.Fatalf("encode summary: %v", merr)
		}
		fmt.Println(string(out))
	}
	if err != nil {
		log.Printf("cycle failed: %v", err)
		if sum != nil {
			log.Printf("resume with: ingestctl -resume %s", sum.SessionID)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, svcCtx *svc.ServiceContext, appCfg *config.Config) (*ingest.Summary, error) {
	if *resumeFlag != "" {
		return svcCtx.Orchestrator.ResumeCycle(ctx, *resumeFlag)
	}

	tickers := splitList(*tickersFlag)
	if len(tickers) == 0 {
		tickers = appCfg.Ingest.Tickers
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("no tickers: pass -tickers or set ingest.tickers in config")
	}
	return svcCtx.Orchestrator.RunCycle(ctx, tickers, splitList(*collectorsFlag))
}

func printLatest(ctx context.Context, svcCtx *svc.ServiceContext) {
	if *sourceFlag == "" {
		log.Fatalf("-latest requires -source")
	}
	row, err := svcCtx.Persistence.LatestBar(ctx, *sourceFlag, *latestFlag, *intervalFlag)
	if err != nil {
		log.Fatalf("latest bar for %s/%s: %v", *sourceFlag, *latestFlag, err)
	}
	out, err := json.MarshalIndent(row, "", "  ")
	if err != nil {
		log.Fatalf("encode latest bar: %v", err)
	}
	fmt.Println(string(out))
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
