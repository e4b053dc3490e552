// check_provider probes one configured provider with a single fetch, useful
// for verifying credentials and endpoint mappings before a deploy.
//
// Usage:
//
//	go run scripts/check_provider.go -provider marketwire -endpoint daily_bars -ticker AAPL
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"finfeed/pkg/provider"
	_ "finfeed/pkg/provider/httpapi"
	_ "finfeed/pkg/provider/sim"
)

func main() {
	cfgPath := flag.String("config", "etc/providers.yaml", "provider config file")
	providerName := flag.String("provider", "", "provider name to probe")
	endpoint := flag.String("endpoint", "daily_bars", "endpoint name")
	ticker := flag.String("ticker", "AAPL", "ticker to fetch")
	timeout := flag.Duration("timeout", 15*time.Second, "probe timeout")
	flag.Parse()

	if *providerName == "" {
		fmt.Fprintln(os.Stderr, "usage: check_provider -provider <name> [-endpoint <name>] [-ticker <sym>]")
		os.Exit(2)
	}

	cfg, err := provider.LoadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *cfgPath, err)
		os.Exit(1)
	}
	runtimes, err := cfg.BuildRuntimes(provider.SystemClock)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build runtimes: %v\n", err)
		os.Exit(1)
	}
	rt, ok := runtimes[*providerName]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown provider %q (have %d configured)\n", *providerName, len(runtimes))
		os.Exit(1)
	}

	fmt.Printf("provider=%s credentials=%d healthy=%d budget=%d\n",
		rt.Name, rt.Pool.Size(), rt.Pool.HealthyCount(), rt.Budget.Remaining())

	req := provider.Request{Ticker: *ticker, Endpoint: *endpoint}
	if cred := rt.Pool.Acquire(); cred != nil {
		req.Credential = cred.Token
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	payload, err := rt.Adapter.Fetch(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		fmt.Fprintf(os.Stderr, "[%s.%s] ERROR (%s): %v (%s)\n",
			rt.Name, *endpoint, provider.Classify(err), err, elapsed.Round(time.Millisecond))
		os.Exit(1)
	}

	fmt.Printf("[%s.%s] OK: %d records in %s\n", rt.Name, *endpoint, len(payload.Records), elapsed.Round(time.Millisecond))
	for _, rec := range payload.Records {
		fields, _ := json.Marshal(rec.Fields)
		fmt.Printf("  - kind=%s ticker=%s ts=%s interval=%s fields=%s\n",
			rec.Kind, rec.Ticker, rec.Timestamp.UTC().Format(time.RFC3339), rec.Interval, fields)
	}
}
