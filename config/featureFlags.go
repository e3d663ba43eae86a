package config

import (
	"os"
	"strings"
)

// StrictLockedYearImmutability rejects chain-bookkeeping writes (effective_year_end,
// next_version_id) on locked-year heads as well. The default allows them: record
// values stay immutable, only version-chain metadata moves, which is what lets a
// later year supersede a locked one.
//
// Set via env:
// - STRICT_LOCKED_YEAR_IMMUTABLE=true
func StrictLockedYearImmutability() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_LOCKED_YEAR_IMMUTABLE")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// AsyncRecalculationEnabled routes recalculation requests through the Pub/Sub
// job pipeline instead of running them inline on the request goroutine.
//
// Set via env:
// - ASYNC_RECALC=true
func AsyncRecalculationEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("ASYNC_RECALC")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
