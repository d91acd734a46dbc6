package simulator

import (
	"fmt"
	"math"

	"conjoint/domain/conjoint"
	"conjoint/internal/errors"
)

// PredictShares converts utilities into shares under the given rule.
// availability weights the logit numerators; under first-choice rules a
// product with zero availability cannot win.
func PredictShares(utilities, availability []float64, method conjoint.ShareMethod, scale, tolerance float64) ([]float64, error) {
	if len(utilities) == 0 {
		return nil, errors.Refuse(errors.CodeInvalidProduct, "No products",
			"no utilities to convert into shares", "shares are relative to the products in the scenario",
			"Add at least one product")
	}
	if availability == nil {
		availability = make([]float64, len(utilities))
		for i := range availability {
			availability[i] = 1
		}
	}
	anyAvailable := false
	for _, a := range availability {
		if a > 0 {
			anyAvailable = true
			break
		}
	}
	if !anyAvailable {
		return nil, errors.Refuse(errors.CodeInvalidProduct, "No available products",
			"every product has zero availability", "at least one product must be on the market to take share",
			"Set availability above 0 for at least one product")
	}

	switch method {
	case "", conjoint.ShareLogit:
		return LogitShares(utilities, availability, scale), nil
	case conjoint.ShareFirstChoice:
		return FirstChoiceShares(utilities, availability), nil
	case conjoint.ShareRandomizedFirstChoice:
		return RandomizedFirstChoiceShares(utilities, availability, tolerance), nil
	default:
		return nil, errors.Refuse(errors.CodeInvalidProduct, "Unknown share method",
			fmt.Sprintf("share method %q is not recognised", method),
			"the share rule decides how utilities become market shares",
			"Use logit, first_choice or randomized_first_choice")
	}
}

// LogitShares computes availability-weighted logit shares with the maximum
// utility subtracted before exponentiation.
func LogitShares(utilities, availability []float64, scale float64) []float64 {
	if scale == 0 {
		scale = 1
	}
	maxU := math.Inf(-1)
	for i, u := range utilities {
		if availability[i] > 0 && scale*u > maxU {
			maxU = scale * u
		}
	}
	out := make([]float64, len(utilities))
	sum := 0.0
	for i, u := range utilities {
		if availability[i] <= 0 {
			continue
		}
		out[i] = availability[i] * math.Exp(scale*u-maxU)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// FirstChoiceShares gives the whole market to the highest-utility available
// product; ties go to the first.
func FirstChoiceShares(utilities, availability []float64) []float64 {
	out := make([]float64, len(utilities))
	best, bestU := -1, math.Inf(-1)
	for i, u := range utilities {
		if availability[i] <= 0 {
			u = math.Inf(-1)
		}
		if best < 0 || u > bestU {
			best, bestU = i, u
		}
	}
	out[best] = 1
	return out
}

// RandomizedFirstChoiceShares splits the market equally among available
// products within tolerance of the maximum utility.
func RandomizedFirstChoiceShares(utilities, availability []float64, tolerance float64) []float64 {
	if tolerance <= 0 {
		tolerance = DefaultTieTolerance
	}
	maxU := math.Inf(-1)
	for i, u := range utilities {
		if availability[i] > 0 && u > maxU {
			maxU = u
		}
	}
	out := make([]float64, len(utilities))
	winners := 0
	for i, u := range utilities {
		if availability[i] > 0 && maxU-u <= tolerance {
			out[i] = 1
			winners++
		}
	}
	for i := range out {
		out[i] /= float64(winners)
	}
	return out
}
