package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"finfeed/internal/cli"
	"finfeed/internal/config"
	"finfeed/internal/svc"
)

const shutdownTimeout = 10 * time.Second // Grace period for shutdown

var configFile = flag.String("f", "etc/finfeed.yaml", "path to the main config file")

func main() {
	flag.Parse()
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("[main] Starting ingest daemon...")

	appCfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("[main] Failed to load config %s: %v", *configFile, err)
	}

	log.Printf("[main] Configuration loaded:")
	for _, line := range cli.ConfigSummaryLines(appCfg) {
		log.Printf("  - %s", line)
	}

	svcCtx := svc.NewServiceContext(*appCfg)
	if svcCtx.Orchestrator == nil {
		log.Fatalf("[main] Postgres DSN is required: sessions and checkpoints must be durable")
	}
	if len(appCfg.Ingest.Tickers) == 0 {
		log.Fatalf("[main] ingest.tickers is empty, nothing to ingest")
	}

	interval := time.Duration(appCfg.Ingest.IntervalSec) * time.Second
	log.Printf("[main] Ingesting %d tickers across %d collectors every %s",
		len(appCfg.Ingest.Tickers), len(svcCtx.Collectors), interval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runCycles(ctx, svcCtx, interval)
	}()

	log.Println("[main] Ingest daemon started. Press Ctrl+C to stop.")

	<-ctx.Done()
	log.Println("[main] Shutdown signal received, waiting for the current cycle...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[main] Cycle runner stopped cleanly")
	case <-shutdownCtx.Done():
		log.Println("[main] Shutdown timeout exceeded, forcing exit")
	}

	log.Println("[main] Ingest daemon stopped")
}

// runCycles runs one ingestion cycle immediately, then one per tick. Cycles
// never overlap: a slow cycle simply delays the next tick's work.
func runCycles(ctx context.Context, svcCtx *svc.ServiceContext, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runOnce(ctx, svcCtx)

	for {
		select {
		case <-ctx.Done():
			log.Println("[ingest] Stopping cycle runner")
			return
		case <-ticker.C:
			runOnce(ctx, svcCtx)
		}
	}
}

func runOnce(ctx context.Context, svcCtx *svc.ServiceContext) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	sum, err := svcCtx.Orchestrator.RunCycle(ctx, svcCtx.Config.Ingest.Tickers, nil)
	elapsed := time.Since(start)

	if err != nil {
		log.Printf("[ingest] [ERROR] cycle failed: %v, took %dms", err, elapsed.Milliseconds())
		if sum != nil {
			log.Printf("[ingest] session %s can be resumed with: ingestctl -resume %s", sum.SessionID, sum.SessionID)
		}
		return
	}

	log.Printf("[ingest] [OK] session=%s units=%d served=%d skipped=%d failed=%d calls=%d records=%d rate_limited=%d, took %dms",
		sum.SessionID, sum.Units, sum.Served, sum.Skipped, sum.Failed, sum.Calls, sum.Records, sum.RateLimited, elapsed.Milliseconds())
}
