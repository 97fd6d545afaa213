package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/teknokomo/universo-platformo-backend/internal/platform/apierr"
	"github.com/teknokomo/universo-platformo-backend/internal/template"
)

type APIError struct {
	Message  string   `json:"message"`
	Code     string   `json:"code,omitempty"`
	Problems []string `json:"problems,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError maps domain errors onto the envelope. apierr carries its own
// status and stable code; manifest validation exposes its problem list;
// everything else is a 500.
func RespondError(c *gin.Context, err error) {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		status := ae.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		c.JSON(status, ErrorEnvelope{Error: APIError{Message: ae.Error(), Code: ae.Code}})
		return
	}

	var ve *template.ValidationError
	if errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, ErrorEnvelope{Error: APIError{
			Message:  ve.Error(),
			Code:     apierr.CodeManifestInvalid,
			Problems: ve.Problems,
		}})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorEnvelope{Error: APIError{Message: err.Error()}})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
