package models

import (
	"math"
	"strconv"
	"time"
)

// Points is an amount of currency in tenths of a point.
type Points int64

// Points bounds. RoundPoints saturates to these instead of wrapping.
const (
	MaxPoints = Points(math.MaxInt64)
	MinPoints = Points(math.MinInt64)
)

// RoundPoints rounds raw half-up to one decimal place. Amounts outside the
// int64 range saturate; NaN rounds to zero.
func RoundPoints(raw float64) Points {
	tenths := math.Floor(raw*10 + 0.5)
	switch {
	case math.IsNaN(tenths):
		return 0
	case tenths >= float64(math.MaxInt64):
		return MaxPoints
	case tenths < float64(math.MinInt64):
		return MinPoints
	}
	return Points(tenths)
}

func (p Points) Float64() float64 {
	return float64(p) / 10
}

func (p Points) String() string {
	return strconv.FormatFloat(p.Float64(), 'f', 1, 64)
}

// PointsBag is the balance row of one account.
type PointsBag struct {
	AccountID string
	Points    Points
}

type Vote struct {
	ID          int64
	VoterID     string
	ImageID     string
	Points      Points
	SubmittedAt time.Time
}
