package main

import (
	"errors"
	"net/http"
	"strconv"

	"bitbucket.org/graniteval/assessor_backend/config"
	"bitbucket.org/graniteval/assessor_backend/models"
	"bitbucket.org/graniteval/assessor_backend/utils"
	"bitbucket.org/graniteval/assessor_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

func bindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(validationErrs)})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// respondError maps the error taxonomy onto HTTP statuses. Locked years are
// 423: the resource exists but is frozen, and retrying without unlocking will
// never succeed.
func respondError(c *gin.Context, err error) {
	var yearLocked *models.YearLockedError
	var duplicate *models.DuplicateConfigurationError
	switch {
	case errors.As(err, &yearLocked):
		c.JSON(http.StatusLocked, gin.H{"error": yearLocked.Error(), "year": yearLocked.Year})
	case errors.As(err, &duplicate):
		c.JSON(http.StatusConflict, gin.H{"error": duplicate.Error(), "key": duplicate.Key, "year": duplicate.Year})
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
	default:
		config.LogError(config.GetLogger(), "server", "respondError", c.FullPath(), nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// requestMunicipality resolves the effective tenant: the path parameter must
// match the token's municipality unless the caller is an admin acting across
// tenants.
func requestMunicipality(c *gin.Context) (string, bool) {
	ctx := c.Request.Context()
	tokenMunicipality, _ := utils.GetMunicipalityIdFromContext(ctx)

	pathMunicipality := c.Param("municipalityId")
	if pathMunicipality == "" {
		if tokenMunicipality == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "municipality is required"})
			return "", false
		}
		return tokenMunicipality, true
	}

	if tokenMunicipality != "" && tokenMunicipality != pathMunicipality {
		if isAdmin, _ := utils.GetIsAdminFromContext(ctx); !isAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "municipality mismatch"})
			return "", false
		}
		// admins may act on another municipality; rebind the context tenant
		c.Request = c.Request.WithContext(utils.SetMunicipalityIdInContext(ctx, pathMunicipality))
	}
	if tokenMunicipality == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return "", false
	}
	return pathMunicipality, true
}

func yearParam(c *gin.Context) (int, bool) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
		return 0, false
	}
	return year, true
}

func listYearsHandler(c *gin.Context) {
	municipalityId, ok := requestMunicipality(c)
	if !ok {
		return
	}
	years, err := models.ListAssessmentYears(c.Request.Context(), municipalityId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"years": years})
}

func getMunicipalityHandler(c *gin.Context) {
	municipalityId, ok := requestMunicipality(c)
	if !ok {
		return
	}
	municipality, err := models.GetMunicipalityById(c.Request.Context(), municipalityId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, municipality)
}

// updateMunicipalityHandler changes tenant settings, notably the current-use
// acreage-discount curve. Curve changes affect future calculations only;
// stored values stay until the next recalculation.
func updateMunicipalityHandler(c *gin.Context) {
	municipalityId, ok := requestMunicipality(c)
	if !ok {
		return
	}
	var input models.NewMunicipality
	if !bindJSON(c, &input) {
		return
	}
	municipality, err := models.UpdateMunicipality(c.Request.Context(), municipalityId, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, municipality)
}

// historyHandler lists audit rows for one record, newest first.
func historyHandler(c *gin.Context) {
	if _, ok := requestMunicipality(c); !ok {
		return
	}
	referenceType := c.Query("reference_type")
	if referenceType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reference_type is required"})
		return
	}
	referenceId, err := strconv.Atoi(c.Query("reference_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reference_id must be an integer"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	histories, err := models.GetHistories(c.Request.Context(), referenceType, referenceId, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"histories": histories})
}

func createYearHandler(c *gin.Context) {
	municipalityId, ok := requestMunicipality(c)
	if !ok {
		return
	}
	var req struct {
		SourceYear int `json:"source_year" binding:"required"`
		NewYear    int `json:"new_year" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	year, err := workflow.CreateAssessmentYearFrom(c.Request.Context(), municipalityId, req.SourceYear, req.NewYear)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, year)
}

func lockYearHandler(c *gin.Context) {
	municipalityId, ok := requestMunicipality(c)
	if !ok {
		return
	}
	year, ok := yearParam(c)
	if !ok {
		return
	}
	result, err := models.LockYear(c.Request.Context(), municipalityId, year)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func unlockYearHandler(c *gin.Context) {
	municipalityId, ok := requestMunicipality(c)
	if !ok {
		return
	}
	year, ok := yearParam(c)
	if !ok {
		return
	}
	if isAdmin, _ := utils.GetIsAdminFromContext(c.Request.Context()); !isAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "unlocking a year requires an administrator"})
		return
	}
	result, err := models.UnlockYear(c.Request.Context(), municipalityId, year)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func yearVisibilityHandler(c *gin.Context) {
	municipalityId, ok := requestMunicipality(c)
	if !ok {
		return
	}
	year, ok := yearParam(c)
	if !ok {
		return
	}
	var req struct {
		Hidden *bool `json:"hidden" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	result, err := models.SetYearVisibility(c.Request.Context(), municipalityId, year, *req.Hidden)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func snapshotHandler(c *gin.Context) {
	municipalityId, ok := requestMunicipality(c)
	if !ok {
		return
	}
	year, ok := yearParam(c)
	if !ok {
		return
	}
	snapshot, err := models.GetResolvedSnapshot(c.Request.Context(), municipalityId, year)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func listAssessmentsHandler(c *gin.Context) {
	municipalityId, ok := requestMunicipality(c)
	if !ok {
		return
	}
	year, ok := yearParam(c)
	if !ok {
		return
	}
	afterId, _ := strconv.Atoi(c.Query("after_id"))
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = config.SearchLimit
	}
	assessments, err := models.ListLandAssessments(c.Request.Context(), municipalityId, year, afterId, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assessments": assessments})
}

func createAssessmentHandler(c *gin.Context) {
	if _, ok := requestMunicipality(c); !ok {
		return
	}
	var input models.NewLandAssessment
	if !bindJSON(c, &input) {
		return
	}
	assessment, err := models.CreateLandAssessment(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, assessment)
}

func updateAssessmentLinesHandler(c *gin.Context) {
	if _, ok := requestMunicipality(c); !ok {
		return
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req struct {
		Lines []*models.NewLandUseLine `json:"lines" binding:"required,dive"`
	}
	if !bindJSON(c, &req) {
		return
	}
	assessment, err := models.UpdateLandAssessmentLines(c.Request.Context(), id, req.Lines)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, assessment)
}

// calculateAssessmentHandler revalues one parcel card, optionally persisting.
func calculateAssessmentHandler(c *gin.Context) {
	municipalityId, ok := requestMunicipality(c)
	if !ok {
		return
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req struct {
		Save bool `json:"save"`
	}
	// Body is optional: an empty POST is a dry-run preview.
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	assessment, err := models.GetLandAssessment(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	snapshot, err := models.GetResolvedSnapshot(ctx, municipalityId, assessment.EffectiveYear)
	if err != nil {
		respondError(c, err)
		return
	}

	result := workflow.Calculate(assessment, snapshot)
	if req.Save {
		totals := result.Totals
		if err := models.SaveCalculatedTotals(ctx, assessment, &totals); err != nil {
			respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"totals":                 result.Totals,
		"lines":                  assessment.Lines,
		"excess_acreage_created": result.ExcessAcreageCreated,
		"warnings":               result.Warnings,
		"saved":                  req.Save,
	})
}

// enqueueRecalculationHandler is the async path: write a pending job row, let
// the dispatcher publish it, return 202 with the id to poll.
func enqueueRecalculationHandler(c *gin.Context) {
	if _, ok := requestMunicipality(c); !ok {
		return
	}
	var input models.NewRecalculationJob
	if !bindJSON(c, &input) {
		return
	}
	job, err := models.CreateRecalculationJob(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func getRecalculationHandler(c *gin.Context) {
	job, err := models.GetRecalculationJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func listSketchShapesHandler(c *gin.Context) {
	municipalityId, ok := requestMunicipality(c)
	if !ok {
		return
	}
	year, ok := yearParam(c)
	if !ok {
		return
	}
	propertyId, err := strconv.Atoi(c.Query("property_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "property_id query parameter is required"})
		return
	}
	cardNumber, err := strconv.Atoi(c.Query("card_number"))
	if err != nil {
		cardNumber = 1
	}

	ctx := c.Request.Context()
	shapes, err := models.ListSketchShapes(ctx, municipalityId, propertyId, cardNumber, year)
	if err != nil {
		respondError(c, err)
		return
	}
	snapshot, err := models.GetResolvedSnapshot(ctx, municipalityId, year)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"shapes":  shapes,
		"summary": workflow.AggregateSketch(shapes, snapshot),
	})
}

func createSketchShapeHandler(c *gin.Context) {
	if _, ok := requestMunicipality(c); !ok {
		return
	}
	var input models.NewSketchShape
	if !bindJSON(c, &input) {
		return
	}
	shape, err := models.CreateSketchShape(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, shape)
}

func deleteSketchShapeHandler(c *gin.Context) {
	if _, ok := requestMunicipality(c); !ok {
		return
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := models.DeleteSketchShape(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
