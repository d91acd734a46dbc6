package conjoint

import (
	"time"

	"conjoint/domain/core"
)

// UtilityRow is the zero-centred part-worth of one attribute level.
type UtilityRow struct {
	Attribute      string  `json:"attribute"`
	Level          string  `json:"level"`
	Utility        float64 `json:"utility"`
	StdError       Float   `json:"std_error"`
	CILower        Float   `json:"ci_lower"`
	CIUpper        Float   `json:"ci_upper"`
	PValue         Float   `json:"p_value"`
	Significance   string  `json:"significance_stars"`
	IsBaseline     bool    `json:"is_baseline"`
	Interpretation string  `json:"interpretation"`
}

// ImportanceRow is one attribute's share of the total utility range.
type ImportanceRow struct {
	Attribute      string  `json:"attribute"`
	Label          string  `json:"label,omitempty"`
	Range          float64 `json:"range"`
	ImportancePct  float64 `json:"importance_pct"`
	Rank           int     `json:"rank"`
	Interpretation string  `json:"interpretation"`
}

// FitStatistics summarises model fit.
type FitStatistics struct {
	LogLikNull    Float   `json:"loglik_null"`
	LogLikFitted  Float   `json:"loglik_fitted"`
	McFaddenR2    Float   `json:"mcfadden_r2"`
	AdjMcFaddenR2 Float   `json:"adj_mcfadden_r2"`
	AIC           Float   `json:"aic"`
	BIC           Float   `json:"bic"`
	LRChiSq       Float   `json:"lr_chisq"`
	LRDF          int     `json:"lr_df"`
	LRPValue      Float   `json:"lr_p_value"`
	RSquared      Float   `json:"r_squared"`
	AdjRSquared   Float   `json:"adj_r_squared"`
	RMSE          Float   `json:"rmse"`
	NObs          int     `json:"n_obs"`
	NParameters   int     `json:"n_parameters"`
	Quality       string  `json:"quality"`
	Assessment    string  `json:"assessment"`
	Converged     bool    `json:"converged"`
	ConvergeNote  string  `json:"convergence_note,omitempty"`
	MeanAltPerSet float64 `json:"mean_alternatives_per_set,omitempty"`
}

// HitRate compares predicted and actual choices.
type HitRate struct {
	ChoiceSets       int     `json:"choice_sets"`
	Hits             int     `json:"hits"`
	Rate             float64 `json:"rate"`
	MeanAlternatives float64 `json:"mean_alternatives"`
	ChanceRate       float64 `json:"chance_rate"`
	Improvement      float64 `json:"improvement_over_chance"`
	Assessment       string  `json:"assessment"`
}

// AttributeSignificance summarises level-level tests per attribute.
type AttributeSignificance struct {
	Attribute   string `json:"attribute"`
	Levels      int    `json:"levels_tested"`
	Significant int    `json:"levels_significant"`
	MinPValue   Float  `json:"min_p_value"`
	Summary     string `json:"summary"`
}

// LevelFrequency counts how often a level was shown and chosen.
type LevelFrequency struct {
	Attribute string  `json:"attribute"`
	Level     string  `json:"level"`
	Shown     int     `json:"shown"`
	Chosen    int     `json:"chosen"`
	ChoicePct float64 `json:"choice_pct"`
}

// SimulatorSeed is the utility lookup plus a starter scenario for the simulator.
type SimulatorSeed struct {
	Utilities map[string]map[string]float64 `json:"utilities"`
	Products  []Product                     `json:"products"`
	Shares    []ShareRow                    `json:"shares"`
}

// AnalysisReport is everything one run hands to the reporting collaborator.
type AnalysisReport struct {
	RunID        core.RunID              `json:"run_id"`
	Study        string                  `json:"study"`
	CreatedAt    time.Time               `json:"created_at"`
	AnalysisType AnalysisType            `json:"analysis_type"`
	ChoiceType   ChoiceType              `json:"choice_type,omitempty"`
	Baseline     BaselinePolicy          `json:"baseline_handling"`
	DatasetHash  core.Hash               `json:"dataset_hash"`
	Attributes   []AttributeDefinition   `json:"attributes"`
	Model        *ModelResult            `json:"model"`
	Utilities    []UtilityRow            `json:"utilities"`
	NoneUtility  *UtilityRow             `json:"none_utility,omitempty"`
	Importance   []ImportanceRow         `json:"importance"`
	Fit          FitStatistics           `json:"fit"`
	HitRate      *HitRate                `json:"hit_rate,omitempty"`
	Significance []AttributeSignificance `json:"significance,omitempty"`
	Frequencies  []LevelFrequency        `json:"level_frequencies,omitempty"`
	Validation   ValidationResult        `json:"validation"`
	Warnings     []Finding               `json:"warnings"`
	Simulator    *SimulatorSeed          `json:"simulator,omitempty"`
}

// UtilityTable returns attribute → level → utility.
func (r *AnalysisReport) UtilityTable() map[string]map[string]float64 {
	table := make(map[string]map[string]float64)
	for _, u := range r.Utilities {
		if table[u.Attribute] == nil {
			table[u.Attribute] = make(map[string]float64)
		}
		table[u.Attribute][u.Level] = u.Utility
	}
	return table
}
