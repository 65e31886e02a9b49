package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	datastoreMatching "github.com/acat-platform/datastore-matcher"
)

type cliOptions struct {
	referencePath string
	inputPath     string
	outputDir     string
	threshold     float64
	provider      string
	model         string
	delay         float64
	retries       int
	verbose       bool
	stdout        bool
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		log.Fatalf("datastore-matcher: %v", err)
	}
	if err := run(opts); err != nil {
		log.Fatalf("datastore-matcher: %v", err)
	}
}

func parseFlags() (cliOptions, error) {
	var opts cliOptions
	flag.StringVar(&opts.referencePath, "reference", "", "CSV/TSV file with the ACAT reference datastore names (default: $ACAT_REFERENCE_FILE)")
	flag.StringVar(&opts.inputPath, "input", "", "CSV/TSV file with the datastore names to match")
	flag.StringVar(&opts.outputDir, "output-dir", "output", "Directory where the four report CSVs are written")
	flag.Float64Var(&opts.threshold, "threshold", 0, "Confidence threshold below which EOL enrichment runs (default 0.7)")
	flag.StringVar(&opts.provider, "provider", "", "LLM provider: openai or anthropic (default openai)")
	flag.StringVar(&opts.model, "model", "", "Model name override for the selected provider")
	flag.Float64Var(&opts.delay, "delay", 0, "Seconds between outbound API calls (default 0.5)")
	flag.IntVar(&opts.retries, "retries", 0, "Attempts per outbound call (default 3)")
	flag.BoolVar(&opts.verbose, "verbose", false, "Log per-row debug detail")
	flag.BoolVar(&opts.stdout, "stdout", false, "Print a per-row match preview to STDOUT")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s --input FILE [--reference FILE] [options]\n\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	opts.referencePath = strings.TrimSpace(opts.referencePath)
	opts.inputPath = strings.TrimSpace(opts.inputPath)
	opts.outputDir = strings.TrimSpace(opts.outputDir)

	if opts.inputPath == "" {
		flag.Usage()
		return opts, errors.New("missing required --input file")
	}
	return opts, nil
}

func run(opts cliOptions) error {
	cfg := datastoreMatching.ConfigFromEnv()
	applyFlags(&cfg, opts)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	referencePath := opts.referencePath
	if referencePath == "" {
		referencePath = cfg.ReferenceFile
	}
	if referencePath == "" {
		return errors.New("missing reference list: pass --reference or set ACAT_REFERENCE_FILE")
	}

	reference, err := datastoreMatching.LoadReference(referencePath)
	if err != nil {
		return fmt.Errorf("read reference list: %w", err)
	}
	rows, err := datastoreMatching.LoadInput(opts.inputPath)
	if err != nil {
		return fmt.Errorf("read input datastores: %w", err)
	}
	if len(rows) == 0 {
		return errors.New("input file does not contain any datastore names")
	}

	var cache datastoreMatching.CycleCache
	if addr := cfg.RedisAddr(); addr != "" {
		cache = datastoreMatching.NewRedisCycleCache(redis.NewClient(&redis.Options{Addr: addr}), cfg.EOLCacheTTL)
		log.Printf("Using Redis cycle cache at %s", addr)
	}

	pipeline, err := datastoreMatching.BuildPipeline(cfg, cache)
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}

	report := pipeline.Run(context.Background(), uuid.NewString(), reference, rows)

	if err := report.WriteFiles(opts.outputDir); err != nil {
		return err
	}
	fmt.Printf("Results written to %s\n", opts.outputDir)

	printSummary(report)
	if opts.stdout {
		printPreview(report)
	}
	return nil
}

// applyFlags copies only the flags the user actually set over the
// environment-derived config, so flags win without erasing env settings.
func applyFlags(cfg *datastoreMatching.Config, opts cliOptions) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "threshold":
			cfg.ConfidenceThreshold = opts.threshold
		case "provider":
			cfg.Provider = opts.provider
		case "model":
			cfg.Model = opts.model
		case "delay":
			cfg.RateLimitDelay = time.Duration(opts.delay * float64(time.Second))
		case "retries":
			cfg.MaxRetries = opts.retries
		case "verbose":
			cfg.Verbose = opts.verbose
		}
	})
}

func printSummary(report *datastoreMatching.RunReport) {
	s := report.Summary
	line := strings.Repeat("=", 60)
	fmt.Println()
	fmt.Println(line)
	fmt.Println("PROCESSING SUMMARY")
	fmt.Println(line)
	fmt.Println()
	fmt.Println("MATCHING RESULTS:")
	fmt.Printf("  Total datastores processed: %d\n", s.Total)
	fmt.Printf("  High confidence (>=0.8): %d\n", s.HighConfidence)
	fmt.Printf("  Medium confidence (0.6-0.8): %d\n", s.MediumConfidence)
	fmt.Printf("  Low confidence (<0.6): %d\n", s.LowConfidence)
	fmt.Println()
	fmt.Println("EOL ENRICHMENT:")
	fmt.Printf("  Datastores with EOL data: %d\n", s.Enriched)
	fmt.Println()
	fmt.Println(line)
}

func printPreview(report *datastoreMatching.RunReport) {
	fmt.Println()
	fmt.Println("==== MATCH PREVIEW ====")
	for i, m := range report.Matches {
		matched := m.MatchedDatastore
		if matched == "" {
			matched = "NOT FOUND"
		}
		fmt.Printf("%d. %s -> %s (confidence=%.2f)\n", i+1, m.InputDatastore, matched, m.Confidence)
		if m.RequiresEOLLookup {
			fmt.Println("    flagged for EOL lookup")
		}
	}
}
