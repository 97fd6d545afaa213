package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/teknokomo/universo-platformo-backend/internal/migration"
	"github.com/teknokomo/universo-platformo-backend/internal/platform/apierr"
	"github.com/teknokomo/universo-platformo-backend/internal/services"
)

type MigrationHandler struct {
	migrationService services.MigrationService
}

func NewMigrationHandler(migrationService services.MigrationService) *MigrationHandler {
	return &MigrationHandler{migrationService: migrationService}
}

// input accepts both route shapes: branch-scoped (:branchId) and
// metahub-scoped (:metahubId, default branch resolved downstream).
func (mh *MigrationHandler) input(c *gin.Context) (services.MigrationInput, bool) {
	var input services.MigrationInput

	if raw := c.Param("branchId"); raw != "" {
		branchID, err := uuid.Parse(raw)
		if err != nil {
			RespondError(c, apierr.Newf(http.StatusBadRequest, apierr.CodeBranchNotFound,
				"branchId %q is not a uuid", raw))
			return input, false
		}
		input.BranchID = &branchID
	} else {
		metahubID, err := uuid.Parse(c.Param("metahubId"))
		if err != nil {
			RespondError(c, apierr.Newf(http.StatusBadRequest, apierr.CodeBranchNotFound,
				"metahubId %q is not a uuid", c.Param("metahubId")))
			return input, false
		}
		input.MetahubID = metahubID
	}

	if raw := c.Query("targetTemplateVersionId"); raw != "" {
		target, err := uuid.Parse(raw)
		if err != nil {
			RespondError(c, apierr.Newf(http.StatusBadRequest, apierr.CodeTemplateVersionNotFound,
				"targetTemplateVersionId %q is not a uuid", raw))
			return input, false
		}
		input.TargetTemplateVersionID = &target
	}

	input.CleanupMode = c.DefaultQuery("cleanupMode", "keep")
	return input, true
}

func (mh *MigrationHandler) Status(c *gin.Context) {
	input, ok := mh.input(c)
	if !ok {
		return
	}
	status, err := mh.migrationService.Status(c.Request.Context(), input)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, status)
}

func (mh *MigrationHandler) Plan(c *gin.Context) {
	input, ok := mh.input(c)
	if !ok {
		return
	}
	plan, err := mh.migrationService.Plan(c.Request.Context(), input)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, plan)
}

type applyBody struct {
	DryRun                  bool    `json:"dryRun"`
	TargetTemplateVersionID *string `json:"targetTemplateVersionId"`
	CleanupMode             string  `json:"cleanupMode"`
	Actor                   *string `json:"actor"`
}

func (mh *MigrationHandler) Apply(c *gin.Context) {
	input, ok := mh.input(c)
	if !ok {
		return
	}

	var body applyBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			RespondError(c, apierr.New(http.StatusBadRequest, "", err))
			return
		}
	}
	if body.CleanupMode != "" {
		input.CleanupMode = body.CleanupMode
	}
	if body.TargetTemplateVersionID != nil {
		target, err := uuid.Parse(*body.TargetTemplateVersionID)
		if err != nil {
			RespondError(c, apierr.Newf(http.StatusBadRequest, apierr.CodeTemplateVersionNotFound,
				"targetTemplateVersionId %q is not a uuid", *body.TargetTemplateVersionID))
			return
		}
		input.TargetTemplateVersionID = &target
	}
	applyInput := services.MigrationApplyInput{MigrationInput: input, DryRun: body.DryRun}
	if body.Actor != nil {
		actor, err := uuid.Parse(*body.Actor)
		if err != nil {
			RespondError(c, apierr.Newf(http.StatusBadRequest, "", "actor %q is not a uuid", *body.Actor))
			return
		}
		applyInput.Actor = &actor
	}

	result, err := mh.migrationService.Apply(c.Request.Context(), applyInput)
	if err != nil {
		RespondError(c, err)
		return
	}
	if result.Status == migration.StatusBlocked {
		c.JSON(http.StatusConflict, result)
		return
	}
	RespondOK(c, result)
}

func (mh *MigrationHandler) History(c *gin.Context) {
	input, ok := mh.input(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	page, err := mh.migrationService.History(c.Request.Context(), input, limit, offset)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, page)
}
