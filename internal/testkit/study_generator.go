package testkit

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"

	"conjoint/domain/conjoint"
)

// StudyGeneratorConfig configures the synthetic conjoint data generator.
type StudyGeneratorConfig struct {
	Respondents        int                            `json:"respondents"`
	SetsPerRespondent  int                            `json:"sets_per_respondent"`
	AlternativesPerSet int                            `json:"alternatives_per_set"`
	Attributes         []conjoint.AttributeDefinition `json:"attributes"`
	TrueUtilities      map[string]map[string]float64  `json:"true_utilities"`
	Seed               int64                          `json:"seed"`
	NoneLabel          string                         `json:"none_label,omitempty"`
	NoneUtility        float64                        `json:"none_utility,omitempty"`
	IncludeNone        bool                           `json:"include_none"`
	// PerRespondentSetIDs restarts choice set ids at CS1 for every respondent.
	PerRespondentSetIDs bool    `json:"per_respondent_set_ids"`
	RatingScale         float64 `json:"rating_scale,omitempty"`
}

// DefaultStudyConfig is the smartphone study used across the test suites.
func DefaultStudyConfig() StudyGeneratorConfig {
	return StudyGeneratorConfig{
		Respondents:        50,
		SetsPerRespondent:  8,
		AlternativesPerSet: 3,
		Attributes: []conjoint.AttributeDefinition{
			{Name: "Brand", Levels: []string{"Apple", "Samsung", "Google", "OnePlus"}},
			{Name: "Price", Levels: []string{"$299", "$399", "$499", "$599"}},
			{Name: "Screen_Size", Label: "Screen Size", Levels: []string{"5.5 inches", "6.1 inches", "6.7 inches"}},
			{Name: "Battery_Life", Label: "Battery Life", Levels: []string{"12 hours", "18 hours", "24 hours"}},
			{Name: "Camera_Quality", Label: "Camera Quality", Levels: []string{"Basic", "Good", "Excellent"}},
		},
		TrueUtilities: map[string]map[string]float64{
			"Brand":          {"Apple": 0.8, "Samsung": 0.4, "Google": 0.2, "OnePlus": -1.4},
			"Price":          {"$299": 1.2, "$399": 0.4, "$499": -0.3, "$599": -1.3},
			"Screen_Size":    {"5.5 inches": -0.6, "6.1 inches": 0.0, "6.7 inches": 0.6},
			"Battery_Life":   {"12 hours": -0.8, "18 hours": 0.0, "24 hours": 0.8},
			"Camera_Quality": {"Basic": -0.7, "Good": 0.0, "Excellent": 0.7},
		},
		Seed:        42,
		NoneLabel:   "None of these",
		RatingScale: 10,
	}
}

// SmallStudyConfig is a three-attribute study with strong effects that
// estimates cleanly from a few thousand rows.
func SmallStudyConfig() StudyGeneratorConfig {
	return StudyGeneratorConfig{
		Respondents:        100,
		SetsPerRespondent:  10,
		AlternativesPerSet: 3,
		Attributes: []conjoint.AttributeDefinition{
			{Name: "Brand", Levels: []string{"A", "B"}},
			{Name: "Price", Levels: []string{"Low", "Mid", "High"}},
			{Name: "Size", Levels: []string{"S", "L"}},
		},
		TrueUtilities: map[string]map[string]float64{
			"Brand": {"A": 0, "B": 0.8},
			"Price": {"Low": 0, "Mid": -0.7, "High": -1.6},
			"Size":  {"S": 0, "L": 0.4},
		},
		Seed:        7,
		NoneLabel:   "None of these",
		RatingScale: 10,
	}
}

// StudyGenerator produces long-format conjoint tables.
type StudyGenerator struct {
	config StudyGeneratorConfig
	rng    *rand.Rand
}

// NewStudyGenerator creates a seeded generator.
func NewStudyGenerator(config StudyGeneratorConfig) *StudyGenerator {
	return &StudyGenerator{config: config, rng: rand.New(rand.NewSource(config.Seed))}
}

// Registry builds the attribute registry for the configured attributes.
func (g *StudyGenerator) Registry(policy conjoint.BaselinePolicy) (*conjoint.Registry, error) {
	return conjoint.NewRegistry(g.config.Attributes, policy)
}

// Headers returns the column order of generated tables.
func (g *StudyGenerator) Headers(extra ...string) []string {
	headers := []string{"resp_id", "choice_set_id", "alternative_id"}
	for _, a := range g.config.Attributes {
		headers = append(headers, a.Name)
	}
	return append(headers, extra...)
}

type profile struct {
	levels  map[string]string
	utility float64
	isNone  bool
}

func (g *StudyGenerator) randomProfile() profile {
	p := profile{levels: make(map[string]string, len(g.config.Attributes))}
	for _, a := range g.config.Attributes {
		lvl := a.Levels[g.rng.Intn(len(a.Levels))]
		p.levels[a.Name] = lvl
		p.utility += g.config.TrueUtilities[a.Name][lvl]
	}
	return p
}

// gumbel draws standard Gumbel noise, the error term of the logit model.
func (g *StudyGenerator) gumbel() float64 {
	u := g.rng.Float64()
	for u == 0 {
		u = g.rng.Float64()
	}
	return -math.Log(-math.Log(u))
}

func (g *StudyGenerator) setID(resp, set, counter int) string {
	if g.config.PerRespondentSetIDs {
		return fmt.Sprintf("CS%d", set)
	}
	return strconv.Itoa(counter)
}

// Choice generates a single-choice table; with IncludeNone each set carries
// an explicit none row.
func (g *StudyGenerator) Choice() *conjoint.Table {
	table := &conjoint.Table{Headers: g.Headers("chosen")}
	counter := 0
	for resp := 1; resp <= g.config.Respondents; resp++ {
		for set := 1; set <= g.config.SetsPerRespondent; set++ {
			counter++
			alts := make([]profile, 0, g.config.AlternativesPerSet+1)
			for a := 0; a < g.config.AlternativesPerSet; a++ {
				alts = append(alts, g.randomProfile())
			}
			if g.config.IncludeNone {
				alts = append(alts, profile{isNone: true, utility: g.config.NoneUtility})
			}
			best, bestU := 0, math.Inf(-1)
			for i := range alts {
				u := alts[i].utility + g.gumbel()
				if u > bestU {
					best, bestU = i, u
				}
			}
			for i, p := range alts {
				row := g.baseRow(resp, set, counter, i+1, p)
				row["chosen"] = flag(i == best)
				table.Rows = append(table.Rows, row)
			}
		}
	}
	return table
}

// BestWorst generates best-worst sets: best is the highest noisy utility,
// worst the lowest among the rest.
func (g *StudyGenerator) BestWorst() *conjoint.Table {
	table := &conjoint.Table{Headers: g.Headers("best", "worst")}
	counter := 0
	for resp := 1; resp <= g.config.Respondents; resp++ {
		for set := 1; set <= g.config.SetsPerRespondent; set++ {
			counter++
			n := g.config.AlternativesPerSet
			alts := make([]profile, n)
			noisy := make([]float64, n)
			for i := range alts {
				alts[i] = g.randomProfile()
				noisy[i] = alts[i].utility + g.gumbel()
			}
			best, worst := 0, 0
			for i := range noisy {
				if noisy[i] > noisy[best] {
					best = i
				}
			}
			if best == 0 {
				worst = 1
			}
			for i := range noisy {
				if i != best && noisy[i] < noisy[worst] {
					worst = i
				}
			}
			for i, p := range alts {
				row := g.baseRow(resp, set, counter, i+1, p)
				row["best"] = flag(i == best)
				row["worst"] = flag(i == worst)
				table.Rows = append(table.Rows, row)
			}
		}
	}
	return table
}

// Rating generates one rated profile per set and respondent, scaled onto
// [1, RatingScale] with normal noise.
func (g *StudyGenerator) Rating() *conjoint.Table {
	headers := []string{"resp_id", "profile_id"}
	for _, a := range g.config.Attributes {
		headers = append(headers, a.Name)
	}
	table := &conjoint.Table{Headers: append(headers, "rating")}
	scale := g.config.RatingScale
	if scale <= 0 {
		scale = 10
	}
	for resp := 1; resp <= g.config.Respondents; resp++ {
		for set := 1; set <= g.config.SetsPerRespondent; set++ {
			p := g.randomProfile()
			rating := scale/2 + p.utility + g.rng.NormFloat64()*0.5
			rating = math.Max(1, math.Min(scale, rating))
			row := conjoint.Record{
				"resp_id":    strconv.Itoa(resp),
				"profile_id": strconv.Itoa(set),
				"rating":     strconv.FormatFloat(rating, 'f', 3, 64),
			}
			for k, v := range p.levels {
				row[k] = v
			}
			table.Rows = append(table.Rows, row)
		}
	}
	return table
}

func (g *StudyGenerator) baseRow(resp, set, counter, alt int, p profile) conjoint.Record {
	row := conjoint.Record{
		"resp_id":        strconv.Itoa(resp),
		"choice_set_id":  g.setID(resp, set, counter),
		"alternative_id": strconv.Itoa(alt),
	}
	for _, a := range g.config.Attributes {
		if p.isNone {
			row[a.Name] = g.config.NoneLabel
		} else {
			row[a.Name] = p.levels[a.Name]
		}
	}
	return row
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
