package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// ModelFile is a model described in TOML:
//
//	formula     = "y ~ x1 + C(g)"
//	data        = "data.csv"
//	engine      = "formulaic"
//	ordering    = "degree"
//	na_action   = "drop"
//	constraints = ["x1 = 0", "C(g)[T.b] = C(g)[T.c]"]
//	test_terms  = true
//
// A relative data path is resolved against the file's directory.
type ModelFile struct {
	Formula     string   `toml:"formula" validate:"required,contains=~"`
	Data        string   `toml:"data" validate:"required"`
	Sheet       string   `toml:"sheet"`
	Engine      string   `toml:"engine" validate:"omitempty,oneof=patsy formulaic"`
	Ordering    string   `toml:"ordering" validate:"omitempty,oneof=degree sort none"`
	NAAction    string   `toml:"na_action" validate:"omitempty,oneof=drop raise ignore"`
	Constraints []string `toml:"constraints" validate:"dive,required"`
	TestTerms   bool     `toml:"test_terms"`
}

var validate = validator.New()

// LoadModelFile decodes and validates a TOML model file.
func LoadModelFile(path string) (*ModelFile, error) {
	var mf ModelFile
	md, err := toml.DecodeFile(path, &mf)
	if err != nil {
		return nil, fmt.Errorf("parse model file %s: %w", path, err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		keys := make([]string, len(undec))
		for i, k := range undec {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("model file %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := validate.Struct(&mf); err != nil {
		return nil, fmt.Errorf("model file %s: %w", path, describeValidation(err))
	}
	if !filepath.IsAbs(mf.Data) {
		mf.Data = filepath.Join(filepath.Dir(path), mf.Data)
	}
	return &mf, nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		if fe.Param() != "" {
			msgs[i] = fmt.Sprintf("%s fails %s=%s (got %q)", strings.ToLower(fe.Field()), fe.Tag(), fe.Param(), fmt.Sprint(fe.Value()))
		} else {
			msgs[i] = fmt.Sprintf("%s fails %s", strings.ToLower(fe.Field()), fe.Tag())
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
