package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/graniteval/assessor_backend/config"
	"bitbucket.org/graniteval/assessor_backend/models"
	"bitbucket.org/graniteval/assessor_backend/utils"
	"bitbucket.org/graniteval/assessor_backend/workflow"
	"github.com/shopspring/decimal"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func TestConfigEditCopyOnWriteLifecycle(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "assessor_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	// History hooks require user context.
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	ctx = utils.SetIsAdminInContext(ctx, true)

	municipality, err := models.CreateMunicipality(ctx, &models.NewMunicipality{
		Name:  "Test Town",
		State: "NH",
	})
	if err != nil {
		t.Fatalf("CreateMunicipality: %v", err)
	}
	municipalityID := municipality.ID.String()
	ctx = utils.SetMunicipalityIdInContext(ctx, municipalityID)

	for _, year := range []int{2024, 2025, 2026} {
		if _, err := models.CreateInitialAssessmentYear(ctx, municipalityID, year); err != nil {
			t.Fatalf("create year %d: %v", year, err)
		}
	}

	// A zone born in 2024.
	minAcreage := dec(t, "2")
	rate := dec(t, "1500")
	zone, err := models.CreateZone(ctx, &models.NewZone{
		Code:              "R1",
		Description:       "Rural",
		MinimumAcreage:    &minAcreage,
		ExcessAcreageRate: &rate,
		EffectiveYear:     2024,
	})
	if err != nil {
		t.Fatalf("CreateZone: %v", err)
	}

	// 1) Edit from 2024's own perspective: in place, no new version.
	updated, mode, err := workflow.ApplyConfigEdit[models.Zone](ctx, zone.ID, 2024, func(z *models.Zone) {
		z.Description = "Rural residential"
	})
	if err != nil {
		t.Fatalf("direct edit: %v", err)
	}
	if mode != workflow.WriteDirect {
		t.Fatalf("mode = %q, want %q", mode, workflow.WriteDirect)
	}
	if updated.ID != zone.ID {
		t.Fatalf("direct edit must not create a version (id %d -> %d)", zone.ID, updated.ID)
	}

	// 2) Edit from 2026: the record is inherited, so it forks.
	fork, mode, err := workflow.ApplyConfigEdit[models.Zone](ctx, zone.ID, 2026, func(z *models.Zone) {
		z.MinimumAcreage = dec(t, "3")
	})
	if err != nil {
		t.Fatalf("fork edit: %v", err)
	}
	if mode != workflow.WriteFork {
		t.Fatalf("mode = %q, want %q", mode, workflow.WriteFork)
	}
	if fork.ID == zone.ID {
		t.Fatal("fork must create a new row")
	}
	if fork.EffectiveYear != 2026 {
		t.Fatalf("fork effective year = %d, want 2026", fork.EffectiveYear)
	}
	if fork.PreviousVersionId == nil || *fork.PreviousVersionId != zone.ID {
		t.Fatalf("fork must chain back to %d, got %v", zone.ID, fork.PreviousVersionId)
	}

	// The old head's validity ends at the fork year; its values are untouched.
	oldHead, err := models.ResolveForYear[models.Zone](ctx, municipalityID, 2025)
	if err != nil {
		t.Fatalf("resolve 2025: %v", err)
	}
	if len(oldHead) != 1 || oldHead[0].ID != zone.ID {
		t.Fatalf("2025 should still see the original version")
	}
	if !oldHead[0].MinimumAcreage.Equal(dec(t, "2")) {
		t.Fatalf("original values must stay frozen, got %s", oldHead[0].MinimumAcreage)
	}

	newHead, err := models.ResolveForYear[models.Zone](ctx, municipalityID, 2026)
	if err != nil {
		t.Fatalf("resolve 2026: %v", err)
	}
	if len(newHead) != 1 || newHead[0].ID != fork.ID {
		t.Fatalf("2026 should resolve to the fork")
	}

	// 3) A second edit at 2026 lands on the fork, not another fork.
	twin, mode, err := workflow.ApplyConfigEdit[models.Zone](ctx, zone.ID, 2026, func(z *models.Zone) {
		z.Description = "Rural residential (rev)"
	})
	if err != nil {
		t.Fatalf("twin edit: %v", err)
	}
	if mode != workflow.WriteTwin {
		t.Fatalf("mode = %q, want %q", mode, workflow.WriteTwin)
	}
	if twin.ID != fork.ID {
		t.Fatalf("twin edit should update row %d, touched %d", fork.ID, twin.ID)
	}

	// 4) Lock 2026: value edits are rejected.
	if _, err := models.LockYear(ctx, municipalityID, 2026); err != nil {
		t.Fatalf("LockYear: %v", err)
	}
	_, _, err = workflow.ApplyConfigEdit[models.Zone](ctx, fork.ID, 2026, func(z *models.Zone) {
		z.Description = "nope"
	})
	var lockErr *models.YearLockedError
	if !errors.As(err, &lockErr) {
		t.Fatalf("want YearLockedError, got %v", err)
	}
	if _, err := models.UnlockYear(ctx, municipalityID, 2026); err != nil {
		t.Fatalf("UnlockYear: %v", err)
	}

	// 5) Delete the fork at its own year: the row is retired and the
	// predecessor becomes head again.
	delMode, err := workflow.ApplyConfigDelete[models.Zone](ctx, fork.ID, 2026)
	if err != nil {
		t.Fatalf("direct delete of fork: %v", err)
	}
	if delMode != workflow.DeleteDirect {
		t.Fatalf("mode = %q, want %q", delMode, workflow.DeleteDirect)
	}
	// Direct delete restores the predecessor as head for 2026.
	restored, err := models.ResolveForYear[models.Zone](ctx, municipalityID, 2026)
	if err != nil {
		t.Fatalf("resolve after delete: %v", err)
	}
	if len(restored) != 1 || restored[0].ID != zone.ID {
		t.Fatalf("deleting the fork should restore the original as head, got %+v", restored)
	}

	// 6) Lock lookups propagate store errors instead of failing open; only a
	// genuinely missing year row counts as unlocked.
	cancelledCtx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := models.IsYearLocked(cancelledCtx, municipalityID, 2026); err == nil {
		t.Fatal("IsYearLocked with a dead context must return the error, not report unlocked")
	}
	if locked, err := models.IsYearLocked(ctx, municipalityID, 1999); err != nil || locked {
		t.Fatalf("missing year row should be unlocked, got locked=%v err=%v", locked, err)
	}

	// 7) Concurrent edits of one business key serialize on the advisory lock:
	// the first forks, the second lands on the fork as a twin update.
	modes := make(chan workflow.WriteMode, 2)
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			_, m, err := workflow.ApplyConfigEdit[models.Zone](ctx, zone.ID, 2026, func(z *models.Zone) {
				z.Description = fmt.Sprintf("concurrent rev %d", i)
			})
			modes <- m
			errs <- err
		}(i)
	}
	seen := map[workflow.WriteMode]int{}
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("concurrent edit: %v", err)
		}
		seen[<-modes]++
	}
	if seen[workflow.WriteFork] != 1 || seen[workflow.WriteTwin] != 1 {
		t.Fatalf("concurrent edits should fork once then twin, got %v", seen)
	}
	heads, err := models.ResolveForYear[models.Zone](ctx, municipalityID, 2026)
	if err != nil {
		t.Fatalf("resolve after concurrent edits: %v", err)
	}
	if len(heads) != 1 {
		t.Fatalf("want one head after concurrent edits, got %d", len(heads))
	}

	// The lock must come back: the next edit completes instead of waiting out
	// the GET_LOCK timeout against a connection that still owns it.
	done := make(chan error, 1)
	go func() {
		_, _, err := workflow.ApplyConfigEdit[models.Zone](ctx, zone.ID, 2026, func(z *models.Zone) {
			z.Description = "post-contention"
		})
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("edit after contention: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("edit after contention blocked; advisory lock leaked")
	}

	// 8) Every write left an audit row.
	histories, err := models.GetHistories(ctx, "zones", zone.ID, 0)
	if err != nil {
		t.Fatalf("GetHistories: %v", err)
	}
	if len(histories) == 0 {
		t.Fatal("expected audit rows for the zone")
	}

	// 9) Outbox claims happen in their own short transaction and are not
	// re-claimable until they go stale.
	for i := 0; i < 2; i++ {
		if _, err := models.CreateRecalculationJob(ctx, &models.NewRecalculationJob{EffectiveYear: 2026, Save: true}); err != nil {
			t.Fatalf("CreateRecalculationJob: %v", err)
		}
	}
	db := config.GetDB()
	claimed, err := models.ClaimUnpublishedJobs(ctx, db, 10, time.Minute)
	if err != nil {
		t.Fatalf("ClaimUnpublishedJobs: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("want 2 claimed jobs, got %d", len(claimed))
	}
	again, err := models.ClaimUnpublishedJobs(ctx, db, 10, time.Minute)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("fresh publishing rows must not be re-claimed, got %d", len(again))
	}
	if err := claimed[0].MarkPublished(ctx, db, "msg-1"); err != nil {
		t.Fatalf("MarkPublished: %v", err)
	}
	stale, err := models.ClaimUnpublishedJobs(ctx, db, 10, 0)
	if err != nil {
		t.Fatalf("stale claim: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != claimed[1].ID {
		t.Fatalf("only the unpublished stale row should be reclaimed, got %+v", stale)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("assessor-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("assessor-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=assessor_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
