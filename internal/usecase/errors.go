package usecase

import (
	"errors"
	"net/http"

	"go-screening-backend/internal/domain"
	"go-screening-backend/pkg/apperror"
	"go-screening-backend/pkg/validation"
)

// toAppError maps domain sentinels onto transport errors. what names the
// resource in not-found messages.
func toAppError(err error, what string) error {
	if err == nil {
		return nil
	}
	var ae *apperror.AppError
	if errors.As(err, &ae) {
		return err
	}
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrScopeMismatch):
		return apperror.New(http.StatusNotFound, what+" not found", err)
	case errors.Is(err, domain.ErrWeightsInvalid):
		return apperror.New(http.StatusBadRequest, err.Error(), err)
	case errors.Is(err, domain.ErrLeaseHeld), errors.Is(err, domain.ErrLeaseTimeout):
		return apperror.New(http.StatusConflict, "Resume is being processed, try again shortly", err)
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrStaleGeneration):
		return apperror.New(http.StatusConflict, "Resume state changed, reload and try again", err)
	case errors.Is(err, domain.ErrConcurrentUpdate):
		return apperror.New(http.StatusConflict, "Record was modified concurrently, try again", err)
	case errors.Is(err, domain.ErrNotAnalyzed):
		return apperror.New(http.StatusConflict, "Resume has not been analyzed yet", err)
	case errors.Is(err, domain.ErrTokenExpired):
		return apperror.New(http.StatusGone, "This link has expired", err)
	case errors.Is(err, domain.ErrTokenInvalid):
		return apperror.New(http.StatusUnauthorized, "Invalid link", err)
	}
	return apperror.Internal(err)
}

// validationError turns validator output into a 400 carrying field errors.
func validationError(err error) error {
	if validation.IsValidationError(err) {
		return apperror.BadRequest("Validation failed").WithDetails(validation.FormatValidationErrors(err))
	}
	return toAppError(err, "")
}
