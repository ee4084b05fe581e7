package app

import (
	"math"

	"town-challenge-service/internal/domain"
)

// ComputeRewards maps a terminal score to earnings and experience using the
// challenge's fixed multiplier table. Unknown difficulties multiply by 1.
func ComputeRewards(table domain.RewardTable, difficulty domain.Difficulty, correctCount int) (earnings, experience int) {
	multiplier, ok := table.Multipliers[difficulty]
	if !ok || multiplier <= 0 {
		multiplier = 1
	}
	earnings = int(math.Round(float64(correctCount) * table.BaseRate * multiplier))
	experience = int(math.Round(float64(correctCount) * table.XPRate * multiplier))
	return earnings, experience
}
