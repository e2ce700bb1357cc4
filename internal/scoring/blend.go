package scoring

import "math"

// Blend mixes a prior score with the mean of follow-up evidence:
// round((1-w)*prior + w*mean(evidence)). With no evidence the prior is kept.
func Blend(prior int, evidence []int, w float64) int {
	if len(evidence) == 0 {
		return Clamp(prior)
	}
	if w < 0 {
		w = 0
	}
	if w > 1 {
		w = 1
	}
	sum := 0
	for _, e := range evidence {
		sum += Clamp(e)
	}
	mean := float64(sum) / float64(len(evidence))
	return Clamp(int(math.Round((1-w)*float64(prior) + w*mean + 1e-9)))
}

// Mean of the four response sub-scores, rounded.
func ResponseQuality(depth, specificity, relevance, technical int) int {
	total := Clamp(depth) + Clamp(specificity) + Clamp(relevance) + Clamp(technical)
	return int(math.Round(float64(total) / 4))
}
