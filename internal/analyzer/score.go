package analyzer

import (
	"math"

	"github.com/harborview-capital/regionscan/internal/model"
)

// ScoreCounts folds feature counts into the [0,100] infrastructure score.
// Each feature contributes min(count, saturation)/saturation of its weight,
// so the score is bounded and never decreases when a count grows.
func ScoreCounts(rec model.InfrastructureRecord, cfg Config) int {
	var total float64
	for _, f := range model.FeatureTypes {
		params, ok := cfg.Features[f]
		if !ok || params.Saturation < 1 {
			continue
		}
		count := rec.Count(f)
		if count < 0 {
			count = 0
		}
		filled := float64(count) / float64(params.Saturation)
		if filled > 1 {
			filled = 1
		}
		total += filled * params.Weight
	}

	score := int(math.Round(total * 100))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
