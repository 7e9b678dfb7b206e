package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "embed"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tigerroll/merchpipe/internal/app"
	registry "github.com/tigerroll/merchpipe/pkg/pipeline/core/registry"
	logger "github.com/tigerroll/merchpipe/pkg/pipeline/support/util/logger"
)

// embeddedConfig embeds the application's YAML configuration file.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

// embeddedSteps embeds the pipeline step definitions.
//
//go:embed resources/steps.yaml
var embeddedSteps []byte

func main() {
	// The registry is needed before flag parsing: the --skip-<category>
	// flags are derived from the categories it declares.
	reg, err := registry.Load(embeddedSteps)
	if err != nil {
		logger.Fatalf("Failed to load step definitions: %v", err)
	}

	flags := flag.NewFlagSet("merchpipe", flag.ExitOnError)
	startStep := flags.Int("start-step", 1, "first step ordinal to run")
	endStep := flags.Int("end-step", 0, "last step ordinal to run (0 = last step)")
	strict := flags.Bool("strict", false, "halt on any step failure, critical or not")
	validateData := flags.Bool("validate-data", false, "run post-step data-quality checks")
	skipAPI := flags.Bool("skip-api", false, "skip data-acquisition steps")
	stepTimeout := flags.Int("step-timeout-minutes", 0, "per-step wall-clock timeout override")
	clearAll := flags.Bool("clear-all", false, "purge cached artifacts for every period before running")
	clearPeriod := flags.Bool("clear-period", false, "purge cached artifacts for the resolved period before running")
	listSteps := flags.Bool("list-steps", false, "print the step table and exit")
	month := flags.String("month", "", "reporting month YYYYMM (default: current, from the calendar resolver)")
	half := flags.String("period", "", "reporting half: A, B or full")

	skipFlags := make(map[string]*bool)
	for _, category := range reg.Categories() {
		skipFlags[category] = flags.Bool("skip-"+category, false, fmt.Sprintf("skip all %s steps", category))
	}

	if err := flags.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	if *listSteps {
		printSteps(reg)
		return
	}

	skipCategories := make(map[string]bool)
	for category, enabled := range skipFlags {
		if *enabled {
			skipCategories[category] = true
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Stopping the pipeline run...", sig)
		cancel()
	}()

	envFilePath := os.Getenv("ENV_FILE_PATH")
	if envFilePath == "" {
		envFilePath = ".env"
	}

	os.Exit(app.RunPipeline(ctx, envFilePath, embeddedConfig, embeddedSteps, app.PipelineInvocation{
		StartStep:          *startStep,
		EndStep:            *endStep,
		Strict:             *strict,
		ValidateData:       *validateData,
		SkipAPI:            *skipAPI,
		SkipCategories:     skipCategories,
		StepTimeoutMinutes: *stepTimeout,
		ClearAll:           *clearAll,
		ClearPeriod:        *clearPeriod,
		Month:              *month,
		Half:               *half,
	}))
}

func printSteps(reg *registry.Registry) {
	fmt.Printf("%-4s %-28s %-13s %-9s %s\n", "ORD", "NAME", "CATEGORY", "CRITICAL", "DESCRIPTION")
	for _, step := range reg.Steps() {
		critical := ""
		if step.Critical {
			critical = "yes"
		}
		fmt.Printf("%-4d %-28s %-13s %-9s %s\n", step.Ordinal, step.Name, step.Category, critical, step.Description)
	}
}
