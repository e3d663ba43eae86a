package models

import (
	"log"

	"bitbucket.org/graniteval/assessor_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Municipality{}, &AssessmentYear{},
		&Zone{}, &LandLadderTier{}, &WaterBodyLadderTier{},
		&NeighborhoodCode{}, &LandAttributeFactor{}, &CurrentUseRate{},
		&BuildingCode{}, &BuildingFeatureCode{}, &SketchSubAreaFactor{},
		&LandAssessment{}, &LandUseLine{}, &SketchShape{},
		&RecalculationJob{}, &History{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
