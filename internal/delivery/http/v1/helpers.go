package v1

import (
	"go-screening-backend/internal/delivery/http/middleware"
	"go-screening-backend/pkg/apperror"
	"go-screening-backend/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// bindJSON binds the body and pushes a 400 with field errors on failure.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if validation.IsValidationError(err) {
			c.Error(apperror.BadRequest("Validation failed").WithDetails(validation.FormatValidationErrors(err)))
		} else {
			c.Error(apperror.BadRequest("Invalid request body"))
		}
		return false
	}
	return true
}

// uuidParam parses a path parameter; a malformed id is reported as not found.
func uuidParam(c *gin.Context, name, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.Error(apperror.NotFound(what + " not found"))
		return uuid.Nil, false
	}
	return id, true
}

func jobID(c *gin.Context) int64 {
	return middleware.JobID(c)
}
