package validation

import (
	"math"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"go-screening-backend/internal/domain"

	"github.com/go-playground/validator/v10"
)

var (
	// Group labels: letters, digits, spaces and - _ . / up to 64 characters
	groupLabelRegex = regexp.MustCompile(`^[\p{L}0-9 _./-]{1,64}$`)

	// Allow letters, numbers, spaces, and common professional punctuation: . ' - / & ( ) ,
	nameRegex = regexp.MustCompile(`^[\p{L}0-9 .'/&(),-]+$`)
)

var (
	std     *validator.Validate
	stdOnce sync.Once
)

// Validator returns the shared instance for `validate` struct tags, with the
// custom rules registered.
func Validator() *validator.Validate {
	stdOnce.Do(func() {
		std = validator.New()
		RegisterValidators(std)
	})
	return std
}

// Struct validates s against its `validate` tags.
func Struct(s interface{}) error {
	return Validator().Struct(s)
}

// RegisterValidators registers custom validators to the validator instance
func RegisterValidators(v *validator.Validate) {
	v.RegisterStructValidation(WeightsSum, domain.ScoringWeights{})
	_ = v.RegisterValidation("group_label", GroupLabel)
	_ = v.RegisterValidation("valid_name", ValidName)
	_ = v.RegisterValidation("no_emoji", NoEmoji)
}

// WeightsSum rejects a domain.ScoringWeights whose values do not sum to 1.0
// within domain.WeightsEpsilon. Per-field ranges come from the struct tags.
func WeightsSum(sl validator.StructLevel) {
	w, ok := sl.Current().Interface().(domain.ScoringWeights)
	if !ok {
		return
	}
	sum := w.Sum()
	if math.IsNaN(sum) || math.Abs(sum-1.0) > domain.WeightsEpsilon {
		sl.ReportError(sum, "Sum", "Sum", "weights_sum", "")
	}
}

func GroupLabel(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if strings.TrimSpace(val) == "" {
		return false
	}
	return groupLabelRegex.MatchString(val)
}

// ValidName validates that a string contains only valid name characters
func ValidName(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true // Optional, use required if needed
	}
	return nameRegex.MatchString(val)
}

// NoEmoji validates that a string does not contain emoji characters
func NoEmoji(fl validator.FieldLevel) bool {
	for _, r := range fl.Field().String() {
		// Supplementary characters (mostly emoji/symbols)
		if r > 0x1F000 {
			return false
		}
		if unicode.In(r, unicode.So, unicode.Sk) {
			return false
		}
	}
	return true
}
