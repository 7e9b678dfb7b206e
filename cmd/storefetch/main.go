package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	_ "embed"

	"github.com/tigerroll/merchpipe/internal/app"
	logger "github.com/tigerroll/merchpipe/pkg/pipeline/support/util/logger"
)

// embeddedConfig embeds the application's YAML configuration file.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

func main() {
	flags := flag.NewFlagSet("storefetch", flag.ExitOnError)
	month := flags.String("month", "", "reporting month YYYYMM (default: current, from the calendar resolver)")
	half := flags.String("period", "", "reporting half: A, B or full")
	batchSize := flags.Int("batch-size", 0, "store codes per bulk request (default: configured batch size)")
	forceFull := flags.Bool("force-full", false, "discard existing progress and refetch the full universe")
	recoverMode := flags.Bool("recover", false, "consolidate from partial artifacts only; no network calls")

	if err := flags.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Stopping the fetch...", sig)
		cancel()
	}()

	envFilePath := os.Getenv("ENV_FILE_PATH")
	if envFilePath == "" {
		envFilePath = ".env"
	}

	os.Exit(app.RunStoreFetch(ctx, envFilePath, embeddedConfig, app.FetchInvocation{
		Month:     *month,
		Half:      *half,
		BatchSize: *batchSize,
		ForceFull: *forceFull,
		Recover:   *recoverMode,
	}))
}
