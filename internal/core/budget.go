package core

import (
	"math"

	"github.com/shopspring/decimal"
)

var maxBasisPoints = decimal.NewFromInt(math.MaxInt64)

// BasisPoints expresses a ratio in hundredths of a percent (10000 = 100%).
type BasisPoints int64

const (
	Threshold75  BasisPoints = 7500
	Threshold100 BasisPoints = 10000
)

// Threshold identifies one budget notification level.
type Threshold uint8

const (
	ThresholdWarning Threshold = iota + 1 // 75%
	ThresholdExceeded                     // 100%
)

func (t Threshold) String() string {
	switch t {
	case ThresholdWarning:
		return "75%"
	case ThresholdExceeded:
		return "100%"
	default:
		return "unknown"
	}
}

// ThresholdCrossing is emitted once per budget and threshold.
type ThresholdCrossing struct {
	Budget    Budget
	Threshold Threshold
	Spent     Money
	Progress  BasisPoints
}

// Progress returns spent/cap in basis points, truncated toward zero.
// A non-positive cap yields 0.
func Progress(spent, cap Money) BasisPoints {
	if cap.Cents <= 0 {
		return 0
	}
	// spent*10000 overflows int64 for very large ledgers; decimal keeps it exact.
	scaled := decimal.NewFromInt(spent.Cents).Mul(decimal.NewFromInt(int64(Threshold100)))
	q, _ := scaled.QuoRem(decimal.NewFromInt(cap.Cents), 0)
	if q.GreaterThan(maxBasisPoints) {
		return BasisPoints(math.MaxInt64)
	}
	return BasisPoints(q.IntPart())
}

// Percent renders basis points as a percentage with two decimals, e.g. "80.25".
func (bp BasisPoints) Percent() string {
	return decimal.New(int64(bp), -2).StringFixed(2)
}

// EvaluateThresholds checks both thresholds independently against the
// budget's flags and returns the updated budget plus the thresholds that
// fired on this evaluation.
func EvaluateThresholds(b Budget, p BasisPoints) (Budget, []Threshold) {
	var fired []Threshold
	if p >= Threshold75 && !b.Notified75 {
		b.Notified75 = true
		fired = append(fired, ThresholdWarning)
	}
	if p >= Threshold100 && !b.Notified100 {
		b.Notified100 = true
		fired = append(fired, ThresholdExceeded)
	}
	return b, fired
}
