// recalculate runs a municipality-wide revaluation synchronously, bypassing
// the Pub/Sub job queue. Useful for backfills and for verifying calculation
// changes against a copy of production data.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	  go run ./cmd/recalculate --municipality-id <uuid> --year 2026 --save
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/graniteval/assessor_backend/config"
	"bitbucket.org/graniteval/assessor_backend/utils"
	"bitbucket.org/graniteval/assessor_backend/workflow"
)

func main() {
	municipalityID := flag.String("municipality-id", "", "Required: municipality id (uuid)")
	year := flag.Int("year", 0, "Required: assessment year")
	save := flag.Bool("save", false, "Persist calculated values (default: dry run)")
	clear := flag.Bool("clear", false, "Clear stored values before recalculating (requires --save)")
	batchSize := flag.Int("batch-size", 0, "Optional: parcels per batch")
	flag.Parse()

	if strings.TrimSpace(*municipalityID) == "" {
		fmt.Fprintln(os.Stderr, "--municipality-id is required")
		os.Exit(1)
	}
	if *year <= 0 {
		fmt.Fprintln(os.Stderr, "--year is required")
		os.Exit(1)
	}
	if *clear && !*save {
		fmt.Fprintln(os.Stderr, "--clear requires --save")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	ctx := utils.SetMunicipalityIdInContext(context.Background(), *municipalityID)
	ctx = utils.SetUserIdInContext(ctx, 0)
	ctx = utils.SetUserNameInContext(ctx, "System")

	summary, err := workflow.RunRecalculation(ctx, *municipalityID, *year, workflow.RecalculationOptions{
		BatchSize:        *batchSize,
		ForceClearValues: *clear,
		Save:             *save,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "recalculation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("processed=%d updated=%d errors=%d save=%v\n", summary.Processed, summary.Updated, summary.Errors, *save)
	for _, e := range summary.ErrorDetails {
		fmt.Printf("  property=%d card=%d: %s\n", e.PropertyId, e.CardNumber, e.Message)
	}
	if summary.Errors > len(summary.ErrorDetails) {
		fmt.Printf("  ... %d more errors not captured\n", summary.Errors-len(summary.ErrorDetails))
	}
}
