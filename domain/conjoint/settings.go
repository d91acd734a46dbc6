package conjoint

import (
	"fmt"
	"strings"

	"conjoint/internal/errors"
)

// AnalysisType is choice-based or rating-based.
type AnalysisType string

const (
	AnalysisChoice AnalysisType = "choice"
	AnalysisRating AnalysisType = "rating"
)

// ChoiceType describes the response format of a choice study.
type ChoiceType string

const (
	ChoiceSingle         ChoiceType = "single"
	ChoiceSingleWithNone ChoiceType = "single_with_none"
	ChoiceBestWorst      ChoiceType = "best_worst"
)

// Settings are the analysis options read from the study configuration.
type Settings struct {
	AnalysisType         AnalysisType   `json:"analysis_type"`
	Method               Method         `json:"estimation_method"`
	Baseline             BaselinePolicy `json:"baseline_handling"`
	ChoiceType           ChoiceType     `json:"choice_type"`
	BestWorstMethod      Method         `json:"bw_method"`
	NoneLabel            string         `json:"none_label"`
	ConfidenceLevel      float64        `json:"confidence_level"`
	MinResponsesPerLevel int            `json:"min_responses_per_level"`
	GenerateSimulator    bool           `json:"generate_market_simulator"`
	IncludeDiagnostics   bool           `json:"include_diagnostics"`
	MaxIterations        int            `json:"max_iterations"`
	Tolerance            float64        `json:"tolerance"`
}

// DefaultSettings returns the defaults of the sample configuration.
func DefaultSettings() Settings {
	return Settings{
		AnalysisType:         AnalysisChoice,
		Method:               MethodAuto,
		Baseline:             BaselineFirstLevel,
		ChoiceType:           ChoiceSingle,
		BestWorstMethod:      MethodBestWorstSequential,
		NoneLabel:            "None of these",
		ConfidenceLevel:      0.95,
		MinResponsesPerLevel: 30,
		IncludeDiagnostics:   true,
		MaxIterations:        100,
		Tolerance:            1e-8,
	}
}

// ParseAnalysisType accepts choice or rating.
func ParseAnalysisType(s string) (AnalysisType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "choice", "cbc":
		return AnalysisChoice, nil
	case "rating", "ratings":
		return AnalysisRating, nil
	default:
		return "", errors.Refuse(errors.CodeConfigInvalid, "Unknown analysis type",
			fmt.Sprintf("analysis_type %q is not recognised", s),
			"the analysis type selects between choice models and rating regression",
			"Use choice or rating")
	}
}

// ParseChoiceType accepts the configuration spellings.
func ParseChoiceType(s string) (ChoiceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "single":
		return ChoiceSingle, nil
	case "single_with_none", "none":
		return ChoiceSingleWithNone, nil
	case "best_worst", "bw", "maxdiff":
		return ChoiceBestWorst, nil
	case "continuous_sum":
		return "", errors.Refuse(errors.CodeUnsupportedFeature, "Unsupported choice type",
			"continuous_sum (allocation) data is not supported",
			"allocation tasks need a different likelihood than single-choice logit",
			"Convert allocations to a single choice per set", "Or run the study as rating-based")
	default:
		return "", errors.Refuse(errors.CodeConfigInvalid, "Unknown choice type",
			fmt.Sprintf("choice_type %q is not recognised", s),
			"the choice type decides how chosen rows are validated",
			"Use single, single_with_none or best_worst")
	}
}

// Validate checks value ranges that cannot be expressed by parsing alone.
func (s Settings) Validate() error {
	if s.ConfidenceLevel <= 0 || s.ConfidenceLevel >= 1 {
		return errors.Refuse(errors.CodeInvalidConfidence, "Invalid confidence level",
			fmt.Sprintf("confidence_level %.4g is outside (0, 1)", s.ConfidenceLevel),
			"confidence intervals are built from the normal quantile of this level",
			"Use a value such as 0.90, 0.95 or 0.99")
	}
	if s.AnalysisType == AnalysisRating && s.Method != MethodAuto && s.Method != MethodRatingOLS {
		return errors.Refuse(errors.CodeInvalidMethod, "Method does not fit rating data",
			fmt.Sprintf("estimation_method %s cannot fit a rating study", s.Method),
			"rating studies are estimated with least squares",
			"Set estimation_method to auto or ols")
	}
	if s.AnalysisType == AnalysisChoice && s.Method == MethodRatingOLS {
		return errors.Refuse(errors.CodeInvalidMethod, "Method does not fit choice data",
			"estimation_method ols cannot fit a choice study",
			"choice data needs a discrete-choice likelihood",
			"Set estimation_method to auto, mlogit or clogit")
	}
	if s.ChoiceType == ChoiceBestWorst && s.BestWorstMethod != MethodBestWorstSequential && s.BestWorstMethod != MethodBestWorstSimultaneous {
		return errors.Refuse(errors.CodeInvalidMethod, "Unknown best-worst method",
			fmt.Sprintf("bw_method %q is not recognised", s.BestWorstMethod),
			"best-worst data is fitted either as two models or as one stacked model",
			"Use sequential or simultaneous")
	}
	if s.MaxIterations <= 0 {
		return errors.ConfigInvalid("max_iterations must be positive")
	}
	if s.Tolerance <= 0 {
		return errors.ConfigInvalid("tolerance must be positive")
	}
	return nil
}
