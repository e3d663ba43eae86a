package models

import (
	"context"
	"sort"

	"bitbucket.org/graniteval/assessor_backend/config"
	"github.com/sirupsen/logrus"
)

// TemporalRecord carries the year-versioning fields shared by every
// configuration table. A record is active for year y when
// EffectiveYear <= y and (EffectiveYearEnd == nil or EffectiveYearEnd > y).
// EffectiveYearEnd is exclusive; nil marks the head of the version chain.
type TemporalRecord struct {
	EffectiveYear     int  `gorm:"not null;index;index:uniq_cfg,unique,priority:8" json:"effective_year"`
	EffectiveYearEnd  *int `gorm:"index" json:"effective_year_end"`
	PreviousVersionId *int `json:"previous_version_id"`
	NextVersionId     *int `json:"next_version_id"`
	// Soft delete. Distinct from the temporal end: an inactive record is gone
	// from every year, a temporally ended record remains visible before its end.
	IsActive *bool `gorm:"not null;default:true;index:uniq_cfg,unique,priority:9" json:"is_active"`
}

// Temporal satisfies ConfigRecord for every model embedding TemporalRecord.
func (t *TemporalRecord) Temporal() *TemporalRecord { return t }

// ActiveForYear reports whether the record applies to the given year.
func (t *TemporalRecord) ActiveForYear(year int) bool {
	if t.IsActive != nil && !*t.IsActive {
		return false
	}
	if t.EffectiveYear > year {
		return false
	}
	if t.EffectiveYearEnd != nil && *t.EffectiveYearEnd <= year {
		return false
	}
	return true
}

// ConfigBase is embedded by every configuration model. Together with the
// model's own key columns it forms the store-level uniqueness backstop
// (municipality, business key, effective year) for concurrent forks.
type ConfigBase struct {
	ID             int    `gorm:"primary_key" json:"id"`
	MunicipalityId string `gorm:"size:64;not null;index;index:uniq_cfg,unique,priority:1" json:"municipality_id"`
}

func (b *ConfigBase) GetID() int                  { return b.ID }
func (b *ConfigBase) SetID(id int)                { b.ID = id }
func (b *ConfigBase) GetMunicipalityId() string   { return b.MunicipalityId }
func (b *ConfigBase) SetMunicipalityId(id string) { b.MunicipalityId = id }

// ConfigRecord is implemented (on pointer receivers) by every year-versioned
// configuration model.
type ConfigRecord interface {
	GetID() int
	SetID(id int)
	GetMunicipalityId() string
	SetMunicipalityId(id string)
	// BusinessKey identifies the logical configuration item across its version
	// chain (e.g. a building code's letter combination).
	BusinessKey() string
	// KeyCondition is the SQL fragment matching records with the same business key.
	KeyCondition() (string, []interface{})
	Temporal() *TemporalRecord
}

// ResolutionFault records two records tying on effective year for one business
// key. That cannot happen under correct writes; it is logged as a
// data-integrity fault and resolved deterministically (lowest id wins), never
// silently.
type ResolutionFault struct {
	Key string
	IDs []int
}

// ResolveHeads picks, for each distinct business key, the record whose
// effective year is the greatest one <= year among records active at that
// year. Input order does not matter. Pure; DB-free.
func ResolveHeads[T any, PT interface {
	*T
	ConfigRecord
}](records []PT, year int) ([]PT, []ResolutionFault) {

	byKey := make(map[string]PT)
	var faults []ResolutionFault

	for _, rec := range records {
		if !rec.Temporal().ActiveForYear(year) {
			continue
		}
		key := rec.BusinessKey()
		best, ok := byKey[key]
		if !ok {
			byKey[key] = rec
			continue
		}
		switch {
		case rec.Temporal().EffectiveYear > best.Temporal().EffectiveYear:
			byKey[key] = rec
		case rec.Temporal().EffectiveYear == best.Temporal().EffectiveYear:
			faults = append(faults, ResolutionFault{Key: key, IDs: []int{best.GetID(), rec.GetID()}})
			if rec.GetID() < best.GetID() {
				byKey[key] = rec
			}
		}
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	results := make([]PT, 0, len(byKey))
	for _, k := range keys {
		results = append(results, byKey[k])
	}
	return results, faults
}

// ResolveForYear returns exactly one record per business key: the version
// effective at the given year. An empty municipality yields an empty list,
// not an error.
func ResolveForYear[T any, PT interface {
	*T
	ConfigRecord
}](ctx context.Context, municipalityId string, year int) ([]PT, error) {

	db := config.GetDB()
	var rows []PT
	err := db.WithContext(ctx).
		Where("municipality_id = ?", municipalityId).
		Where("is_active = ?", true).
		Where("effective_year <= ?", year).
		Where("effective_year_end IS NULL OR effective_year_end > ?", year).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	heads, faults := ResolveHeads[T, PT](rows, year)
	for _, fault := range faults {
		config.GetLogger().WithFields(logrus.Fields{
			"municipality_id": municipalityId,
			"year":            year,
			"business_key":    fault.Key,
			"record_ids":      fault.IDs,
		}).Error("temporal resolution: duplicate effective year for business key")
	}
	return heads, nil
}

// VersionChain walks a record's chain from its earliest ancestor to its latest
// successor, following previous/next version links.
func VersionChain[T any, PT interface {
	*T
	ConfigRecord
}](ctx context.Context, municipalityId string, id int) ([]PT, error) {

	db := config.GetDB()

	fetch := func(id int) (PT, error) {
		var row T
		err := db.WithContext(ctx).
			Where("municipality_id = ?", municipalityId).
			First(&row, id).Error
		if err != nil {
			return nil, err
		}
		return PT(&row), nil
	}

	rec, err := fetch(id)
	if err != nil {
		return nil, err
	}

	// walk back
	var chain []PT
	for cur := rec; cur.Temporal().PreviousVersionId != nil; {
		prev, err := fetch(*cur.Temporal().PreviousVersionId)
		if err != nil {
			return nil, err
		}
		chain = append([]PT{prev}, chain...)
		cur = prev
	}
	chain = append(chain, rec)
	// walk forward
	for cur := rec; cur.Temporal().NextVersionId != nil; {
		next, err := fetch(*cur.Temporal().NextVersionId)
		if err != nil {
			return nil, err
		}
		chain = append(chain, next)
		cur = next
	}
	return chain, nil
}
