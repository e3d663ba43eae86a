package workflow

import (
	"errors"
	"testing"

	"bitbucket.org/graniteval/assessor_backend/models"
)

func TestDecideWrite(t *testing.T) {
	cases := []struct {
		name             string
		recordYear       int
		targetYear       int
		recordYearLocked bool
		targetYearLocked bool
		twinExists       bool
		forDelete        bool
		want             WriteMode
	}{
		{name: "same year direct", recordYear: 2026, targetYear: 2026, want: WriteDirect},
		{name: "same year direct delete", recordYear: 2026, targetYear: 2026, forDelete: true, want: DeleteDirect},
		{name: "inherited record forks", recordYear: 2024, targetYear: 2026, want: WriteFork},
		{name: "inherited with twin updates the twin", recordYear: 2024, targetYear: 2026, twinExists: true, want: WriteTwin},
		{name: "inherited delete ends validity", recordYear: 2024, targetYear: 2026, forDelete: true, want: DeleteTemporal},
		{name: "locked source still forks", recordYear: 2024, targetYear: 2026, recordYearLocked: true, want: WriteFork},
		{name: "locked source still allows temporal delete", recordYear: 2024, targetYear: 2026, recordYearLocked: true, forDelete: true, want: DeleteTemporal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecideWrite(tc.recordYear, tc.targetYear, tc.recordYearLocked, tc.targetYearLocked, tc.twinExists, tc.forDelete)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDecideWriteTargetYearLocked(t *testing.T) {
	for _, forDelete := range []bool{false, true} {
		_, err := DecideWrite(2024, 2026, false, true, false, forDelete)
		var lockErr *models.YearLockedError
		if !errors.As(err, &lockErr) {
			t.Fatalf("forDelete=%v: want YearLockedError, got %v", forDelete, err)
		}
		if lockErr.Year != 2026 {
			t.Fatalf("error should name the target year, got %d", lockErr.Year)
		}
	}
}

func TestDecideWriteRejectsPastTarget(t *testing.T) {
	if _, err := DecideWrite(2026, 2024, false, false, false, false); err == nil {
		t.Fatal("a record born after the target year must be rejected")
	}
}

func TestLockNameCappedAt64(t *testing.T) {
	name := lockNameFor("a-very-long-municipality-identifier-0000000000", "land_ladder_tiers", "R1#acreage#3")
	if len(name) > 64 {
		t.Fatalf("advisory lock names are capped at 64 chars by MySQL, got %d", len(name))
	}
}
