package service

import (
	"math"

	"github.com/iliyamo/user-insights/internal/model"
)

// Growth directions.
const (
	DirectionUp    = "up"
	DirectionDown  = "down"
	DirectionEqual = "equal"
)

// ComputeGrowth compares current with previous. The percentage is rounded
// to two decimals and is 0 when previous is 0.
func ComputeGrowth(current, previous int64) model.Growth {
	g := model.Growth{Current: current, Previous: previous, Direction: DirectionEqual}
	if previous <= 0 {
		return g
	}
	pct := float64(current-previous) / float64(previous) * 100
	g.Percentage = math.Round(pct*100) / 100
	switch {
	case g.Percentage > 0:
		g.Direction = DirectionUp
	case g.Percentage < 0:
		g.Direction = DirectionDown
	}
	return g
}
