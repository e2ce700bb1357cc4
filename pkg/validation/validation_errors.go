package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldLabels maps struct field names to user-facing labels
var FieldLabels = map[string]string{
	"ResumeIDs":       "Resume IDs",
	"Shortlisted":     "Shortlisted",
	"Label":           "Group label",
	"Weights":         "Scoring weights",
	"Sum":             "Scoring weights",
	"CustomQuestions": "Custom questions",
	"Text":            "Question text",
	"QuestionID":      "Question",
	"Answer":          "Answer",
	"ResumeText":      "Resume text",
	"FileKey":         "File key",
	"FileName":        "File name",
	"Skills":          "Skills weight",
	"Experience":      "Experience weight",
	"Trust":           "Trust weight",
	"Education":       "Education weight",
	"Projects":        "Projects weight",
}

// FieldError is one rejected field in a 422 response.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FormatValidationErrors converts validator.ValidationErrors to user-friendly messages
func FormatValidationErrors(err error) []FieldError {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []FieldError{{Message: err.Error()}}
	}

	out := make([]FieldError, 0, len(validationErrors))
	for _, e := range validationErrors {
		out = append(out, FieldError{Field: jsonPath(e.Namespace()), Message: formatSingleError(e)})
	}
	return out
}

// IsValidationError reports whether err came from the validator.
func IsValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

func formatSingleError(e validator.FieldError) string {
	label := getFieldLabel(e.Field())
	param := e.Param()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", label)

	case "min":
		if e.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at least %s characters", label, param)
		}
		if e.Kind().String() == "slice" {
			return fmt.Sprintf("%s must contain at least %s items", label, param)
		}
		return fmt.Sprintf("%s must be at least %s", label, param)

	case "max":
		if e.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at most %s characters", label, param)
		}
		if e.Kind().String() == "slice" {
			return fmt.Sprintf("%s must contain at most %s items", label, param)
		}
		return fmt.Sprintf("%s must be at most %s", label, param)

	case "gte":
		return fmt.Sprintf("%s must be %s or more", label, param)

	case "lte":
		return fmt.Sprintf("%s must be %s or less", label, param)

	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", label, strings.ReplaceAll(param, " ", ", "))

	case "weights_sum":
		return fmt.Sprintf("%s must each lie in [0,1] and sum to 1.0", label)

	case "group_label":
		return fmt.Sprintf("%s may only contain letters, digits, spaces and - _ . / (max 50)", label)

	case "valid_name":
		return fmt.Sprintf("%s may only contain letters, spaces and common punctuation", label)

	case "no_emoji":
		return fmt.Sprintf("%s must not contain emoji or special symbols", label)

	default:
		return fmt.Sprintf("%s failed validation (%s)", label, e.Tag())
	}
}

func getFieldLabel(fieldName string) string {
	if label, ok := FieldLabels[fieldName]; ok {
		return label
	}
	return formatCamelCase(fieldName)
}

// formatCamelCase converts CamelCase to spaced words
func formatCamelCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result.WriteRune(' ')
		}
		result.WriteRune(r)
	}
	return result.String()
}

// jsonPath drops the root struct name: "JobPreferences.CustomQuestions[0].Text"
// becomes "CustomQuestions[0].Text".
func jsonPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
