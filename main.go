package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"quoteflow/config"
	"quoteflow/fetch"
	"quoteflow/logger"
	"quoteflow/models"
	"quoteflow/provider"
	"quoteflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	symbolsPath := flag.String("symbols", "config/symbols.csv", "Path to symbols file")
	outDir := flag.String("out", "out", "Directory for run output files")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Warn("Failed to configure logger, using defaults")
	}

	if cfg.Telemetry.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Telemetry.CloudWatch.Region, cfg.Telemetry.CloudWatch.Namespace, cfg.Telemetry.CloudWatch.Dashboard)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Info("Shutdown signal received")
		cancel()
	}()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, cfg.Telemetry.ReportInterval)
	}

	symbols, err := readSymbols(*symbolsPath)
	if err != nil {
		log.WithError(err).WithField("path", *symbolsPath).Error("Failed to read symbols file")
		os.Exit(1)
	}
	if len(symbols) == 0 {
		log.WithField("path", *symbolsPath).Error("Symbols file contains no symbols")
		os.Exit(1)
	}

	reg, err := provider.NewRegistry(cfg)
	if err != nil {
		log.WithError(err).Error("Failed to build provider registry")
		os.Exit(1)
	}
	fetcher := fetch.NewFetcher(reg, cfg)

	runID := uuid.New().String()
	log.WithFields(logger.Fields{
		"run_id":  runID,
		"symbols": len(symbols),
		"workers": cfg.Fetcher.MaxWorkers,
		"offline": reg.Offline(),
	}).Info("Starting quote run")

	start := time.Now()
	rows := fetchAll(ctx, fetcher, symbols, cfg.Fetcher.MaxWorkers)
	elapsed := time.Since(start)

	found := 0
	for _, r := range rows {
		if r.Found {
			found++
		}
	}

	pullsPath := filepath.Join(*outDir, runID+"_pulls.csv")
	if err := writer.WritePullsCSV(pullsPath, fetcher.PullLog()); err != nil {
		log.WithError(err).Error("Failed to write pull log")
	}
	telemetryPath := filepath.Join(*outDir, runID+"_telemetry.csv")
	if err := writer.WriteTelemetryCSV(telemetryPath, reg.Stats()); err != nil {
		log.WithError(err).Error("Failed to write limiter telemetry")
	}
	quotesPath := filepath.Join(*outDir, runID+"_quotes.csv")
	if err := writer.WriteQuotesCSV(quotesPath, rows); err != nil {
		log.WithError(err).Error("Failed to write quotes")
	}

	if cfg.Storage.S3.Enabled {
		archiveRun(ctx, cfg, runID, fetcher.PullLog())
	}

	log.WithFields(logger.Fields{
		"run_id":   runID,
		"symbols":  len(symbols),
		"found":    found,
		"missing":  len(symbols) - found,
		"duration": elapsed.Round(time.Millisecond).String(),
		"out":      *outDir,
	}).Info("Quote run complete")
}

// fetchAll pulls quotes for all symbols with a bounded worker pool and
// returns one row per symbol in input order.
func fetchAll(ctx context.Context, fetcher *fetch.Fetcher, symbols []string, workers int) []writer.QuoteRow {
	if workers <= 0 {
		workers = 1
	}
	rows := make([]writer.QuoteRow, len(symbols))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				sym := symbols[idx]
				rec, ok := fetcher.Quote(ctx, sym)
				rows[idx] = writer.QuoteRow{
					Symbol:    sym,
					Found:     ok,
					Quote:     rec,
					PctChange: fetcher.PercentChangeToday(ctx, sym),
				}
			}
		}()
	}

	for idx := range symbols {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return rows
		case jobs <- idx:
		}
	}
	close(jobs)
	wg.Wait()
	return rows
}

// readSymbols reads ticker symbols from the first column of a CSV or
// plain text file, one per line. Symbols are uppercased, stripped of a
// leading $, and deduplicated preserving first occurrence.
func readSymbols(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open symbols file: %w", err)
	}
	defer f.Close()

	seen := make(map[string]bool)
	var symbols []string
	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		field := line
		if i := strings.IndexByte(line, ','); i >= 0 {
			field = line[:i]
		}
		sym := strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(field), "$")))
		if first {
			first = false
			// skip a header row
			if sym == "SYMBOL" || sym == "TICKER" {
				continue
			}
		}
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		symbols = append(symbols, sym)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read symbols file: %w", err)
	}
	return symbols, nil
}

// archiveRun encodes the pull log as parquet and uploads it to S3.
func archiveRun(ctx context.Context, cfg *config.Config, runID string, pulls []models.PullLogEntry) {
	log := logger.GetLogger().WithComponent("archive")

	uploader, err := writer.NewS3Uploader(cfg)
	if err != nil {
		log.WithError(err).Error("Failed to create S3 uploader")
		return
	}

	data, err := writer.EncodePullsParquet(pulls)
	if err != nil {
		log.WithError(err).Error("Failed to encode pull log parquet")
		return
	}

	key := fmt.Sprintf("pulls/%s/%s.parquet", time.Now().UTC().Format("2006-01-02"), runID)
	if err := uploader.Upload(ctx, key, "application/octet-stream", data); err != nil {
		log.WithError(err).WithField("key", key).Error("Failed to upload pull log")
		return
	}
	log.WithFields(logger.Fields{"key": key, "bytes": len(data)}).Info("Archived pull log to S3")
}
