package models

import "fmt"

// YearLockedError rejects a write against a locked assessment year. The year
// named is the one that blocked the write: the record's own effective year for
// direct mutations, the target year for copy-on-write attempts.
type YearLockedError struct {
	MunicipalityId string
	Year           int
}

func (e *YearLockedError) Error() string {
	return fmt.Sprintf("assessment year %d is locked", e.Year)
}

// DuplicateConfigurationError reports a business-key collision within one
// (municipality, effective year).
type DuplicateConfigurationError struct {
	Key  string
	Year int
}

func (e *DuplicateConfigurationError) Error() string {
	return fmt.Sprintf("configuration %q already exists for year %d", e.Key, e.Year)
}

// ConfigurationNotFoundError marks a zone/category/ladder referenced during
// calculation that is absent from the resolved snapshot. The calculator records
// it and continues with a neutral default; it is never raised to the caller of
// a single calculation.
type ConfigurationNotFoundError struct {
	Kind string
	Key  string
}

func (e *ConfigurationNotFoundError) Error() string {
	return fmt.Sprintf("no %s configuration for %q", e.Kind, e.Key)
}
