package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/teknokomo/universo-platformo-backend/internal/platform/apierr"
	"github.com/teknokomo/universo-platformo-backend/internal/services"
)

type TemplateHandler struct {
	templateService services.TemplateService
}

func NewTemplateHandler(templateService services.TemplateService) *TemplateHandler {
	return &TemplateHandler{templateService: templateService}
}

// Import accepts a manifest document as the raw request body, JSON or YAML.
func (th *TemplateHandler) Import(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 4<<20))
	if err != nil {
		RespondError(c, apierr.New(http.StatusBadRequest, apierr.CodeManifestInvalid, err))
		return
	}
	result, err := th.templateService.Import(c.Request.Context(), raw)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (th *TemplateHandler) ListVersions(c *gin.Context) {
	versions, err := th.templateService.ListVersions(c.Request.Context(), c.Param("codename"))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"versions": versions})
}
