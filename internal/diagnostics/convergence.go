package diagnostics

import (
	"fmt"
	"math"

	"conjoint/internal/errors"

	"gonum.org/v1/gonum/stat"
)

// Draws holds posterior samples indexed as [chain][iteration][parameter].
type Draws [][][]float64

// ParameterConvergence is the per-parameter convergence table row.
type ParameterConvergence struct {
	Parameter       string  `json:"parameter"`
	RHat            float64 `json:"rhat"`
	ESS             float64 `json:"ess"`
	Geweke          float64 `json:"geweke_z"`
	Autocorrelation float64 `json:"autocorrelation_lag1"`
	Converged       bool    `json:"converged"`
}

// ConvergenceDiagnoser turns sampler draws into a convergence table. It is the
// contract a sampling estimator reports through.
type ConvergenceDiagnoser interface {
	Diagnose(draws Draws, names []string) ([]ParameterConvergence, error)
}

// MCMCDiagnostics implements Gelman-Rubin, effective sample size, Geweke and
// lag-1 autocorrelation.
type MCMCDiagnostics struct {
	// RHatThreshold defaults to 1.1.
	RHatThreshold float64
	// GewekeFirst and GewekeLast are the window fractions; defaults 0.1 and 0.5.
	GewekeFirst float64
	GewekeLast  float64
}

var _ ConvergenceDiagnoser = MCMCDiagnostics{}

func (d MCMCDiagnostics) withDefaults() MCMCDiagnostics {
	if d.RHatThreshold <= 0 {
		d.RHatThreshold = 1.1
	}
	if d.GewekeFirst <= 0 {
		d.GewekeFirst = 0.1
	}
	if d.GewekeLast <= 0 {
		d.GewekeLast = 0.5
	}
	return d
}

// Diagnose requires at least two chains of equal length with at least four
// iterations each.
func (d MCMCDiagnostics) Diagnose(draws Draws, names []string) ([]ParameterConvergence, error) {
	d = d.withDefaults()
	if len(draws) < 2 {
		return nil, errors.InvalidInput("convergence diagnostics need at least two chains")
	}
	n := len(draws[0])
	if n < 4 {
		return nil, errors.InvalidInput("convergence diagnostics need at least four iterations per chain")
	}
	for c, chain := range draws {
		if len(chain) != n {
			return nil, errors.InvalidInput(fmt.Sprintf("chain %d has %d iterations, expected %d", c+1, len(chain), n))
		}
		for i, draw := range chain {
			if len(draw) != len(names) {
				return nil, errors.InvalidInput(fmt.Sprintf("chain %d iteration %d has %d parameters but %d names were given",
					c+1, i+1, len(draw), len(names)))
			}
		}
	}

	out := make([]ParameterConvergence, len(names))
	for p, name := range names {
		chains := make([][]float64, len(draws))
		for c := range draws {
			chains[c] = make([]float64, n)
			for i := range draws[c] {
				chains[c][i] = draws[c][i][p]
			}
		}
		row := ParameterConvergence{
			Parameter:       name,
			RHat:            gelmanRubin(chains),
			ESS:             effectiveSampleSize(chains),
			Geweke:          geweke(chains[0], d.GewekeFirst, d.GewekeLast),
			Autocorrelation: meanAutocorrelation(chains, 1),
		}
		row.Converged = row.RHat < d.RHatThreshold && math.Abs(row.Geweke) < 1.96
		out[p] = row
	}
	return out, nil
}

func gelmanRubin(chains [][]float64) float64 {
	m := float64(len(chains))
	n := float64(len(chains[0]))
	means := make([]float64, len(chains))
	w := 0.0
	for c, x := range chains {
		means[c] = stat.Mean(x, nil)
		w += stat.Variance(x, nil)
	}
	w /= m
	b := n * stat.Variance(means, nil)
	if w == 0 {
		if b == 0 {
			return 1
		}
		return math.Inf(1)
	}
	varHat := (n-1)/n*w + b/n
	return math.Sqrt(varHat / w)
}

func autocorrelation(x []float64, lag int) float64 {
	if lag >= len(x) {
		return 0
	}
	mean := stat.Mean(x, nil)
	num, den := 0.0, 0.0
	for i, v := range x {
		d := v - mean
		den += d * d
		if i+lag < len(x) {
			num += d * (x[i+lag] - mean)
		}
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func meanAutocorrelation(chains [][]float64, lag int) float64 {
	sum := 0.0
	for _, x := range chains {
		sum += autocorrelation(x, lag)
	}
	return sum / float64(len(chains))
}

// effectiveSampleSize sums chain-averaged autocorrelations until they drop
// below 0.05.
func effectiveSampleSize(chains [][]float64) float64 {
	n := len(chains[0])
	total := float64(n * len(chains))
	tau := 1.0
	for lag := 1; lag < n; lag++ {
		rho := meanAutocorrelation(chains, lag)
		if rho < 0.05 {
			break
		}
		tau += 2 * rho
	}
	return total / tau
}

func geweke(x []float64, first, last float64) float64 {
	n := len(x)
	na := int(math.Max(2, math.Floor(first*float64(n))))
	nb := int(math.Max(2, math.Floor(last*float64(n))))
	a := x[:na]
	b := x[n-nb:]
	se := math.Sqrt(stat.Variance(a, nil)/float64(len(a)) + stat.Variance(b, nil)/float64(len(b)))
	if se == 0 {
		return 0
	}
	return (stat.Mean(a, nil) - stat.Mean(b, nil)) / se
}
