// year-rollover creates a new assessment year from an existing one and locks
// the source. The new year starts hidden; unhide it via the API once staff
// have reviewed it.
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
	sourceYear := flag.Int("source-year", 0, "Required: year to copy from")
	newYear := flag.Int("new-year", 0, "Required: year to create")
	flag.Parse()

	if strings.TrimSpace(*municipalityID) == "" {
		fmt.Fprintln(os.Stderr, "--municipality-id is required")
		os.Exit(1)
	}
	if *sourceYear <= 0 || *newYear <= 0 {
		fmt.Fprintln(os.Stderr, "--source-year and --new-year are required")
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

	year, err := workflow.CreateAssessmentYearFrom(ctx, *municipalityID, *sourceYear, *newYear)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rollover failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("created year %d (id=%d, hidden=%v); year %d is now locked\n",
		year.Year, year.ID, utils.DereferencePtr(year.IsHidden), *sourceYear)
}
