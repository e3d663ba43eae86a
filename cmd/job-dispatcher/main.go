// job-dispatcher runs the recalculation job publisher as a standalone
// process. The API server runs one in-process; deploy this when API replicas
// should not publish (e.g. scale-to-zero environments where a pinned worker
// drains the queue instead).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bitbucket.org/graniteval/assessor_backend/config"
	"bitbucket.org/graniteval/assessor_backend/workflow"
)

func main() {
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	logger := config.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("job dispatcher started")
	workflow.NewJobDispatcher(db, logger).Run(ctx)
	logger.Info("job dispatcher stopped")
}
