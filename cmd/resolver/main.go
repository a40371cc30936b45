package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/catalog-resolver/internal/app"
	"github.com/lueurxax/catalog-resolver/internal/core/domain"
	"github.com/lueurxax/catalog-resolver/internal/platform/config"
	db "github.com/lueurxax/catalog-resolver/internal/storage"
)

const usage = "Usage: %s --mode=[run|enqueue|worker|status|review|reviews|labels|usage] [--supplier=N] [--limit=N] " +
	"[--review=ID --action=validate|reject|create|override --product=N --label=TEXT] [--days=N]"

type flags struct {
	mode     string
	supplier int64
	limit    int
	reviewID string
	action   string
	product  int64
	label    string
	status   string
	days     int
}

func main() {
	var f flags

	flag.StringVar(&f.mode, "mode", "", "Service mode (run, enqueue, worker, status, review, reviews, labels, usage)")
	flag.Int64Var(&f.supplier, "supplier", 0, "Supplier id scope, 0 for every supplier")
	flag.IntVar(&f.limit, "limit", 0, "Max unique labels sent to extraction, 0 for no cap")
	flag.StringVar(&f.reviewID, "review", "", "Review entry id")
	flag.StringVar(&f.action, "action", "", "Review action (validate, reject, create, override)")
	flag.Int64Var(&f.product, "product", 0, "Product id for validate and override")
	flag.StringVar(&f.label, "label", "", "Supplier label for override")
	flag.StringVar(&f.status, "status", string(domain.ReviewPending), "Review status for the reviews listing")
	flag.IntVar(&f.days, "days", 1, "Days of LLM usage to summarize")

	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbCfg := cfg.DatabaseCfg()
	poolOpts := db.PoolOptions{
		MaxConns:          dbCfg.MaxConnections,
		MinConns:          dbCfg.MinConnections,
		MaxConnIdleTime:   dbCfg.MaxConnIdleTime,
		MaxConnLifetime:   dbCfg.MaxConnLifetime,
		HealthCheckPeriod: dbCfg.HealthCheckPeriod,
	}

	database, err := db.NewWithOptions(ctx, dbCfg.PostgresDSN, poolOpts, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	application := app.New(cfg, database, &logger)
	defer application.Close()

	out, err := runMode(ctx, application, f)

	// A failed run still prints its partial report.
	if out != nil && (err == nil || f.mode == "run") {
		printJSON(out)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("application stopped")
			return
		}

		if app.IsBusy(err) {
			logger.Warn().Err(err).Msg("another run holds this scope")
			os.Exit(2) //nolint:gocritic // deferred cleanup is not needed on this path
		}

		logger.Fatal().Err(err).Msg("application error")
	}
}

func newLogger(appEnv string) zerolog.Logger {
	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func runMode(ctx context.Context, application *app.App, f flags) (any, error) {
	var supplierID *int64
	if f.supplier > 0 {
		supplierID = &f.supplier
	}

	switch f.mode {
	case "run":
		rec, err := application.RunOnce(ctx, supplierID, f.limit)
		if rec.Report != nil {
			return rec.Report, err
		}

		return nil, err
	case "enqueue":
		return application.Enqueue(ctx, supplierID, f.limit)
	case "worker":
		return nil, application.RunWorker(ctx)
	case "status":
		return application.Status(ctx, supplierID)
	case "review":
		return application.ApplyReview(ctx, app.ReviewRequest{
			Action:     f.action,
			ReviewID:   f.reviewID,
			ProductID:  f.product,
			SupplierID: f.supplier,
			Label:      f.label,
		})
	case "reviews":
		return application.ListReviews(ctx, domain.ReviewStatus(f.status), f.limit)
	case "labels":
		return application.Labels(ctx, f.supplier)
	case "usage":
		return application.Usage(ctx, f.days)
	default:
		log.Fatalf(usage, os.Args[0])

		return nil, nil
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode output: %v\n", err)
	}
}
