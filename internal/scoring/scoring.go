// Package scoring turns analyzer dimension scores into overall scores,
// recommendations and job-level rankings. It performs no I/O.
package scoring

import (
	"fmt"
	"math"

	"go-screening-backend/internal/domain"
)

// Overall is the weighted sum of the dimension scores, rounded half away
// from zero and clamped to [0,100].
func Overall(d domain.DimensionScores, w domain.ScoringWeights) int {
	sum := float64(d.Skills)*w.Skills +
		float64(d.Experience)*w.Experience +
		float64(d.Trust)*w.Trust +
		float64(d.Education)*w.Education +
		float64(d.Projects)*w.Projects

	// Guard float noise such as 71.99999999 before rounding.
	return Clamp(int(math.Round(sum + 1e-9)))
}

func Clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// ClampDimensions forces every dimension into [0,100].
func ClampDimensions(d domain.DimensionScores) domain.DimensionScores {
	return domain.DimensionScores{
		Skills:     Clamp(d.Skills),
		Experience: Clamp(d.Experience),
		Trust:      Clamp(d.Trust),
		Education:  Clamp(d.Education),
		Projects:   Clamp(d.Projects),
	}
}

// Thresholds are inclusive lower bounds for each recommendation band.
type Thresholds struct {
	StrongYes int
	Yes       int
	Maybe     int
	No        int
}

func DefaultThresholds() Thresholds {
	return Thresholds{StrongYes: 85, Yes: 70, Maybe: 50, No: 30}
}

func (t Thresholds) Validate() error {
	if !(t.StrongYes > t.Yes && t.Yes > t.Maybe && t.Maybe > t.No) {
		return fmt.Errorf("scoring: thresholds must be strictly descending: %+v", t)
	}
	if t.StrongYes > 100 || t.No < 0 {
		return fmt.Errorf("scoring: thresholds must lie within [0,100]: %+v", t)
	}
	return nil
}

func (t Thresholds) Recommend(overall int) domain.Recommendation {
	switch {
	case overall >= t.StrongYes:
		return domain.RecommendStrongYes
	case overall >= t.Yes:
		return domain.RecommendYes
	case overall >= t.Maybe:
		return domain.RecommendMaybe
	case overall >= t.No:
		return domain.RecommendNo
	default:
		return domain.RecommendStrongNo
	}
}
