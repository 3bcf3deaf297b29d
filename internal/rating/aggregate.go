package rating

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/choosewine/choosewine-api/internal/domain"
)

// Aggregate computes the (count, average) pair for a set of rating values.
// The average is the arithmetic mean rounded to one decimal place, half away
// from zero. Decimal arithmetic keeps values such as 4.45 from rounding down
// through binary float error. An empty set yields the zero aggregate.
func Aggregate(values []float64) domain.RatingAggregate {
	if len(values) == 0 {
		return domain.RatingAggregate{}
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	count := int64(len(values))
	avg := sum.Div(decimal.NewFromInt(count)).Round(1)
	return domain.RatingAggregate{
		Average: avg.InexactFloat64(),
		Count:   count,
	}
}

// RoundToOneDecimal rounds half away from zero to one decimal place.
func RoundToOneDecimal(value float64) float64 {
	return decimal.NewFromFloat(value).Round(1).InexactFloat64()
}

// ValidateValue checks the inclusive [0, 5] bound on a rating value.
func ValidateValue(value float64) error {
	if math.IsNaN(value) || value < domain.MinRatingValue || value > domain.MaxRatingValue {
		return domain.NewValidationError("rating", "must be a number between 0 and 5")
	}
	return nil
}

func values(ratings []domain.Rating) []float64 {
	out := make([]float64, len(ratings))
	for i, r := range ratings {
		out[i] = r.Value
	}
	return out
}
