package validation

import (
	"errors"
	"strings"
	"testing"

	"go-screening-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightsSum(t *testing.T) {
	ok := domain.JobPreferences{Weights: domain.DefaultScoringWeights()}
	assert.NoError(t, Struct(ok))

	nearly := domain.JobPreferences{Weights: domain.ScoringWeights{Skills: 0.5, Experience: 0.495}}
	assert.NoError(t, Struct(nearly), "within tolerance")

	bad := domain.JobPreferences{Weights: domain.ScoringWeights{Skills: 0.5, Experience: 0.3}}
	err := Struct(bad)
	require.Error(t, err)
	fields := FormatValidationErrors(err)
	require.Len(t, fields, 1)
	assert.Equal(t, "Weights.Sum", fields[0].Field)
	assert.Contains(t, fields[0].Message, "sum to 1.0")

	negative := domain.JobPreferences{Weights: domain.ScoringWeights{Skills: 1.2, Experience: -0.2}}
	assert.Error(t, Struct(negative))
}

func TestCustomQuestionRules(t *testing.T) {
	prefs := domain.JobPreferences{
		Weights: domain.DefaultScoringWeights(),
		CustomQuestions: []domain.PreferenceQuestion{
			{ID: uuid.New(), Text: "Why this role? \U0001F680", Required: true},
			{ID: uuid.New(), Text: ""},
		},
	}
	err := Struct(prefs)
	require.Error(t, err)

	fields := FormatValidationErrors(err)
	require.Len(t, fields, 2)
	assert.Equal(t, "CustomQuestions[0].Text", fields[0].Field)
	assert.Contains(t, fields[0].Message, "emoji")
	assert.Contains(t, fields[1].Message, "required")
}

func TestGroupLabel(t *testing.T) {
	type req struct {
		Label string `validate:"group_label"`
	}
	assert.NoError(t, Struct(req{Label: "Phone screen / round-2"}))
	assert.Error(t, Struct(req{Label: "   "}))
	assert.Error(t, Struct(req{Label: "drop table;"}))
	assert.NoError(t, Struct(req{Label: strings.Repeat("a", 64)}))
	assert.Error(t, Struct(req{Label: strings.Repeat("a", 65)}))
}

func TestFormatNonValidationError(t *testing.T) {
	fields := FormatValidationErrors(errors.New("unexpected EOF"))
	require.Len(t, fields, 1)
	assert.Equal(t, "unexpected EOF", fields[0].Message)
	assert.False(t, IsValidationError(errors.New("x")))
}
