package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"conjoint/domain/conjoint"
	"conjoint/internal"
	"conjoint/internal/errors"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// Workbook sheet names of a study configuration.
const (
	SettingsSheet   = "Settings"
	AttributesSheet = "Attributes"
)

// Study is one conjoint study: analysis settings, attributes, column bindings
// and resolved file paths.
type Study struct {
	Name       string
	Path       string
	Settings   conjoint.Settings
	Bindings   conjoint.ColumnBindings
	Attributes []conjoint.AttributeDefinition
	// DataFile and OutputFile are absolute or relative to the working
	// directory once loaded.
	DataFile   string
	OutputFile string
	// Products is an optional simulator scenario (YAML studies only).
	Products []conjoint.Product
}

// Registry builds the attribute registry under the study's baseline policy.
func (s *Study) Registry() (*conjoint.Registry, error) {
	return conjoint.NewRegistry(s.Attributes, s.Settings.Baseline)
}

// StudyDocument is the YAML (and JSON API) layout of a study. Settings use
// the same keys as the Settings sheet of a workbook.
type StudyDocument struct {
	Name       string                         `json:"name" yaml:"name"`
	Settings   map[string]string              `json:"settings" yaml:"settings"`
	Attributes []conjoint.AttributeDefinition `json:"attributes" yaml:"attributes"`
	Products   []conjoint.Product             `json:"products,omitempty" yaml:"products"`
}

// Study applies the document's settings and validates the result. path
// resolves relative file settings and may be empty.
func (doc StudyDocument) Study(path string) (*Study, error) {
	study := newStudy(path)
	if doc.Name != "" {
		study.Name = doc.Name
	}
	study.Attributes = doc.Attributes
	study.Products = doc.Products
	for key, value := range doc.Settings {
		if err := applySetting(study, key, value); err != nil {
			return nil, err
		}
	}
	return finish(study)
}

// LoadStudy reads a study from an .xlsx workbook or a YAML document.
func LoadStudy(path string) (*Study, error) {
	internal.DefaultLogger.Debug("[StudyConfig] loading %s", path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return loadWorkbook(path)
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WithCode(errors.CodeConfigInvalid, errors.Wrapf(err, "reading study %s", path))
		}
		return ParseStudyYAML(data, path)
	default:
		return nil, errors.Refuse(errors.CodeConfigInvalid, "Unsupported configuration file",
			fmt.Sprintf("%s is neither an .xlsx workbook nor a YAML document", path),
			"the study configuration lists attributes and settings in one of these formats",
			"Provide a workbook with Settings and Attributes sheets", "Or a .yaml study file")
	}
}

// ParseStudyYAML decodes a YAML study. path is used to resolve relative file
// settings and may be empty.
func ParseStudyYAML(data []byte, path string) (*Study, error) {
	var doc StudyDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Refuse(errors.CodeConfigInvalid, "Unreadable study file",
			err.Error(), "the study cannot be analysed without its configuration",
			"Check the YAML syntax").WithCause(err)
	}
	return doc.Study(path)
}

func loadWorkbook(path string) (*Study, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Refuse(errors.CodeConfigInvalid, "Cannot open configuration workbook",
			fmt.Sprintf("failed to open %s: %v", path, err),
			"the study cannot be analysed without its configuration",
			"Check that the file exists and is a valid .xlsx workbook").WithCause(err)
	}
	defer f.Close()

	study := newStudy(path)
	settings, err := f.GetRows(SettingsSheet)
	if err != nil {
		return nil, missingSheet(path, SettingsSheet, err)
	}
	for i, row := range settings {
		if i == 0 || len(row) < 2 {
			continue
		}
		if err := applySetting(study, row[0], row[1]); err != nil {
			return nil, err
		}
	}

	attrs, err := f.GetRows(AttributesSheet)
	if err != nil {
		return nil, missingSheet(path, AttributesSheet, err)
	}
	study.Attributes, err = parseAttributeRows(attrs)
	if err != nil {
		return nil, err
	}
	return finish(study)
}

func missingSheet(path, sheet string, err error) error {
	return errors.Refuse(errors.CodeConfigInvalid, "Missing configuration sheet",
		fmt.Sprintf("%s has no %q sheet", path, sheet),
		"settings and attributes are read from fixed sheet names",
		fmt.Sprintf("Add a sheet named %s", sheet)).WithCause(err)
}

// parseAttributeRows reads AttributeName, AttributeLabel, NumLevels and
// Level1..LevelN columns located by header.
func parseAttributeRows(rows [][]string) ([]conjoint.AttributeDefinition, error) {
	if len(rows) < 2 {
		return nil, errors.Refuse(errors.CodeMissingAttributes, "No attributes configured",
			"the Attributes sheet has no attribute rows",
			"part-worths are estimated per attribute level",
			"Add one row per attribute below the header")
	}
	col := map[string]int{}
	var levelCols []int
	for i, h := range rows[0] {
		h = strings.TrimSpace(h)
		col[strings.ToLower(h)] = i
		if strings.HasPrefix(strings.ToLower(h), "level") {
			levelCols = append(levelCols, i)
		}
	}
	nameCol, ok := col["attributename"]
	if !ok {
		return nil, errors.Refuse(errors.CodeMissingAttributes, "Attributes sheet has no AttributeName column",
			"the header row does not contain AttributeName",
			"attributes are matched to data columns by name",
			"Use the header AttributeName, AttributeLabel, NumLevels, Level1, Level2, ...")
	}
	cell := func(row []string, i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	labelCol, hasLabel := col["attributelabel"]
	numCol, hasNum := col["numlevels"]

	var defs []conjoint.AttributeDefinition
	for _, row := range rows[1:] {
		name := cell(row, nameCol)
		if name == "" {
			continue
		}
		def := conjoint.AttributeDefinition{Name: name}
		if hasLabel {
			def.Label = cell(row, labelCol)
		}
		for _, c := range levelCols {
			if v := cell(row, c); v != "" {
				def.Levels = append(def.Levels, v)
			}
		}
		if hasNum {
			if raw := cell(row, numCol); raw != "" {
				n, err := strconv.Atoi(raw)
				if err != nil || n != len(def.Levels) {
					return nil, errors.Refuse(errors.CodeInvalidAttribute, "Level count mismatch",
						fmt.Sprintf("attribute %q declares NumLevels=%s but lists %d levels", name, raw, len(def.Levels)),
						"a mismatch usually means a level cell was skipped or left over",
						fmt.Sprintf("Set NumLevels to %d or fill in the missing level cells", len(def.Levels)))
				}
			}
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func newStudy(path string) *Study {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if path == "" {
		name = "study"
	}
	return &Study{
		Name:     name,
		Path:     path,
		Settings: conjoint.DefaultSettings(),
		Bindings: conjoint.DefaultBindings(),
	}
}

// finish resolves paths and validates everything that can be checked before
// estimation.
func finish(study *Study) (*Study, error) {
	if study.Path != "" {
		dir := filepath.Dir(study.Path)
		study.DataFile = resolve(dir, study.DataFile)
		study.OutputFile = resolve(dir, study.OutputFile)
	}
	if study.Settings.AnalysisType == conjoint.AnalysisRating && study.Settings.Method == conjoint.MethodAuto {
		study.Settings.Method = conjoint.MethodRatingOLS
	}
	if err := study.Settings.Validate(); err != nil {
		return nil, err
	}
	if _, err := study.Registry(); err != nil {
		return nil, err
	}
	return study, nil
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// applySetting maps one Setting/Value pair onto the study. Unknown keys are
// ignored with a debug log.
func applySetting(study *Study, key, value string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.TrimSpace(value)
	s := &study.Settings
	b := &study.Bindings
	var err error
	switch key {
	case "analysis_type":
		s.AnalysisType, err = conjoint.ParseAnalysisType(value)
	case "estimation_method":
		s.Method, err = conjoint.ParseMethod(value)
	case "baseline_handling":
		s.Baseline, err = conjoint.ParseBaselinePolicy(value)
	case "choice_type":
		s.ChoiceType, err = conjoint.ParseChoiceType(value)
	case "bw_method":
		if value != "" {
			s.BestWorstMethod, err = conjoint.ParseMethod(value)
		}
	case "none_label":
		if value != "" {
			s.NoneLabel = value
		}
	case "data_file":
		study.DataFile = value
	case "output_file":
		study.OutputFile = value
	case "respondent_id_column":
		setColumn(&b.RespondentID, value)
	case "choice_set_column":
		setColumn(&b.ChoiceSet, value)
	case "alternative_id_column":
		b.AlternativeID = value
	case "chosen_column":
		setColumn(&b.Chosen, value)
	case "rating_column":
		setColumn(&b.Rating, value)
	case "best_column":
		setColumn(&b.Best, value)
	case "worst_column":
		setColumn(&b.Worst, value)
	case "none_column":
		b.None = value
	case "confidence_level":
		s.ConfidenceLevel, err = parseFloatSetting(key, value)
	case "tolerance":
		s.Tolerance, err = parseFloatSetting(key, value)
	case "min_responses_per_level":
		s.MinResponsesPerLevel, err = parseIntSetting(key, value)
	case "max_iterations":
		s.MaxIterations, err = parseIntSetting(key, value)
	case "generate_market_simulator":
		s.GenerateSimulator, err = parseBoolSetting(key, value)
	case "include_diagnostics":
		s.IncludeDiagnostics, err = parseBoolSetting(key, value)
	case "", "setting":
	default:
		internal.DefaultLogger.Debug("[StudyConfig] ignoring unknown setting %q", key)
	}
	return err
}

func setColumn(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func settingError(key, value, want string) error {
	return errors.Refuse(errors.CodeConfigInvalid, "Invalid setting value",
		fmt.Sprintf("%s = %q is not %s", key, value, want),
		"the setting cannot be applied",
		fmt.Sprintf("Set %s to %s", key, want))
}

func parseFloatSetting(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, settingError(key, value, "a number")
	}
	return v, nil
}

func parseIntSetting(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		if f, ferr := strconv.ParseFloat(value, 64); ferr == nil && f == float64(int(f)) {
			return int(f), nil
		}
		return 0, settingError(key, value, "a whole number")
	}
	return v, nil
}

func parseBoolSetting(key, value string) (bool, error) {
	switch strings.ToLower(value) {
	case "true", "yes", "1", "y":
		return true, nil
	case "false", "no", "0", "n", "":
		return false, nil
	default:
		return false, settingError(key, value, "TRUE or FALSE")
	}
}
