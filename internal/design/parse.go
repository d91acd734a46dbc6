package design

import (
	"fmt"
	"strconv"

	"conjoint/domain/conjoint"
	"conjoint/internal/errors"
)

// Parse converts validated raw rows into typed observations.
func Parse(table *conjoint.Table, reg *conjoint.Registry, b conjoint.ColumnBindings, s conjoint.Settings) ([]conjoint.Observation, error) {
	if table == nil || len(table.Rows) == 0 {
		return nil, errors.Refuse(errors.CodeDataEmpty, "No data",
			"the dataset has no rows", "there is nothing to estimate",
			"Check the data_file setting and the sheet or file contents")
	}
	names := reg.Names()
	obs := make([]conjoint.Observation, 0, len(table.Rows))
	for i, row := range table.Rows {
		o := conjoint.Observation{
			Row:         i + 1,
			Respondent:  row.Get(b.RespondentID),
			ChoiceSet:   row.Get(b.ChoiceSet),
			Alternative: row.Get(b.AlternativeID),
			Levels:      make(map[string]string, len(names)),
		}
		if s.ChoiceType == conjoint.ChoiceSingleWithNone && s.AnalysisType == conjoint.AnalysisChoice {
			o.IsNone = conjoint.IsNoneRow(row, b, names, s.NoneLabel)
		}
		if !o.IsNone {
			for _, a := range names {
				o.Levels[a] = row.Get(a)
			}
		}

		var err error
		switch {
		case s.AnalysisType == conjoint.AnalysisRating:
			o.Rating, err = strconv.ParseFloat(row.Get(b.Rating), 64)
			if o.ChoiceSet == "" {
				o.ChoiceSet = strconv.Itoa(i + 1)
			}
		case s.ChoiceType == conjoint.ChoiceBestWorst:
			var ok1, ok2 bool
			o.Best, ok1 = conjoint.ParseFlag(row.Get(b.Best))
			o.Worst, ok2 = conjoint.ParseFlag(row.Get(b.Worst))
			if !ok1 || !ok2 {
				err = fmt.Errorf("best/worst flags must be 0 or 1")
			}
		default:
			var ok bool
			o.Chosen, ok = conjoint.ParseFlag(row.Get(b.Chosen))
			if !ok {
				err = fmt.Errorf("chosen value %q must be 0 or 1", row.Get(b.Chosen))
			}
		}
		if err != nil {
			return nil, errors.Refuse(errors.CodeDataValidation, "Unreadable row",
				fmt.Sprintf("row %d: %v", i+1, err),
				"every row must parse before a design matrix can be built",
				"Run validation and fix the reported rows").WithCause(err)
		}
		obs = append(obs, o)
	}
	return obs, nil
}
