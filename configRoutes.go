package main

import (
	"context"
	"net/http"
	"strconv"

	"bitbucket.org/graniteval/assessor_backend/models"
	"bitbucket.org/graniteval/assessor_backend/workflow"
	"github.com/gin-gonic/gin"
)

// configEditRequest is the body of every config PUT: the year the editor is
// viewing plus the record's full replacement fields. The copy-on-write
// resolver decides whether that lands in place, on the target year's twin, or
// on a fresh fork.
type configEditRequest[N any] struct {
	TargetYear int `json:"target_year" binding:"required"`
	Fields     N   `json:"fields" binding:"required"`
}

type configWriteResponse struct {
	WriteMode         workflow.WriteMode `json:"write_mode"`
	Record            interface{}        `json:"record,omitempty"`
	PreviousVersionId *int               `json:"previous_version_id,omitempty"`
}

func configCreateHandler[T any, PT interface {
	*T
	models.ConfigRecord
}, N any](create func(context.Context, *N) (PT, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requestMunicipality(c); !ok {
			return
		}
		var input N
		if !bindJSON(c, &input) {
			return
		}
		record, err := create(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, configWriteResponse{WriteMode: workflow.WriteDirect, Record: record})
	}
}

func configEditHandler[T any, PT interface {
	*T
	models.ConfigRecord
}, N any](assign func(PT, *N)) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requestMunicipality(c); !ok {
			return
		}
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		var req configEditRequest[N]
		if !bindJSON(c, &req) {
			return
		}

		record, mode, err := workflow.ApplyConfigEdit[T, PT](c.Request.Context(), id, req.TargetYear, func(rec PT) {
			assign(rec, &req.Fields)
		})
		if err != nil {
			respondError(c, err)
			return
		}

		response := configWriteResponse{WriteMode: mode, Record: record}
		if mode == workflow.WriteFork {
			response.PreviousVersionId = record.Temporal().PreviousVersionId
		}
		c.JSON(http.StatusOK, response)
	}
}

func configDeleteHandler[T any, PT interface {
	*T
	models.ConfigRecord
}]() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requestMunicipality(c); !ok {
			return
		}
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		targetYear, err := strconv.Atoi(c.Query("target_year"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "target_year query parameter is required"})
			return
		}

		mode, err := workflow.ApplyConfigDelete[T, PT](c.Request.Context(), id, targetYear)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, configWriteResponse{WriteMode: mode})
	}
}

func configChainHandler[T any, PT interface {
	*T
	models.ConfigRecord
}]() gin.HandlerFunc {
	return func(c *gin.Context) {
		municipalityId, ok := requestMunicipality(c)
		if !ok {
			return
		}
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		chain, err := models.VersionChain[T, PT](c.Request.Context(), municipalityId, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"versions": chain})
	}
}

func registerConfigRoutes(api *gin.RouterGroup) {
	cfg := api.Group("/config")

	registerConfigTable[models.Zone](cfg, "zones", models.CreateZone,
		func(rec *models.Zone, in *models.NewZone) {
			rec.Code = in.Code
			rec.Description = in.Description
			if in.MinimumAcreage != nil {
				rec.MinimumAcreage = *in.MinimumAcreage
			}
			if in.ExcessAcreageRate != nil {
				rec.ExcessAcreageRate = *in.ExcessAcreageRate
			}
		})

	registerConfigTable[models.LandLadderTier](cfg, "land-ladders", models.CreateLandLadderTier,
		func(rec *models.LandLadderTier, in *models.NewLandLadderTier) {
			rec.ZoneCode = in.ZoneCode
			if in.LadderType != "" {
				rec.LadderType = in.LadderType
			}
			rec.TierOrder = in.TierOrder
			rec.Threshold = in.Threshold
			rec.Value = in.Value
		})

	registerConfigTable[models.WaterBodyLadderTier](cfg, "water-body-ladders", models.CreateWaterBodyLadderTier,
		func(rec *models.WaterBodyLadderTier, in *models.NewWaterBodyLadderTier) {
			rec.WaterBodyName = in.WaterBodyName
			rec.TierOrder = in.TierOrder
			rec.Threshold = in.Threshold
			rec.Value = in.Value
		})

	registerConfigTable[models.NeighborhoodCode](cfg, "neighborhood-codes", models.CreateNeighborhoodCode,
		func(rec *models.NeighborhoodCode, in *models.NewNeighborhoodCode) {
			rec.Code = in.Code
			rec.Description = in.Description
			rec.Percent = in.Percent
		})

	registerConfigTable[models.LandAttributeFactor](cfg, "land-attribute-factors", models.CreateLandAttributeFactor,
		func(rec *models.LandAttributeFactor, in *models.NewLandAttributeFactor) {
			rec.Kind = in.Kind
			rec.DisplayText = in.DisplayText
			rec.Percent = in.Percent
		})

	registerConfigTable[models.CurrentUseRate](cfg, "current-use-rates", models.CreateCurrentUseRate,
		func(rec *models.CurrentUseRate, in *models.NewCurrentUseRate) {
			rec.Category = in.Category
			rec.MinRate = in.MinRate
			rec.MaxRate = in.MaxRate
		})

	registerConfigTable[models.BuildingCode](cfg, "building-codes", models.CreateBuildingCode,
		func(rec *models.BuildingCode, in *models.NewBuildingCode) {
			rec.Code = in.Code
			rec.Description = in.Description
			rec.BaseRate = in.BaseRate
			rec.QualityPoints = in.QualityPoints
		})

	registerConfigTable[models.BuildingFeatureCode](cfg, "building-feature-codes", models.CreateBuildingFeatureCode,
		func(rec *models.BuildingFeatureCode, in *models.NewBuildingFeatureCode) {
			rec.DisplayText = in.DisplayText
			rec.Points = in.Points
			rec.Description = in.Description
		})

	registerConfigTable[models.SketchSubAreaFactor](cfg, "sketch-sub-area-factors", models.CreateSketchSubAreaFactor,
		func(rec *models.SketchSubAreaFactor, in *models.NewSketchSubAreaFactor) {
			rec.Label = in.Label
			rec.FactorPercent = in.FactorPercent
			rec.IsLivingSpace = in.IsLivingSpace
		})
}

func registerConfigTable[T any, N any, PT interface {
	*T
	models.ConfigRecord
}](rg *gin.RouterGroup, path string, create func(context.Context, *N) (PT, error), assign func(PT, *N)) {
	rg.POST("/"+path, configCreateHandler[T, PT](create))
	rg.PUT("/"+path+"/:id", configEditHandler[T, PT](assign))
	rg.DELETE("/"+path+"/:id", configDeleteHandler[T, PT]())
	rg.GET("/"+path+"/:id/versions", configChainHandler[T, PT]())
}
