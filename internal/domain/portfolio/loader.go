package portfolio

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

// LoadPortfolio reads a portfolio from a .json, .yaml or .yml file.
func LoadPortfolio(path string) (*Portfolio, error) {
	var p Portfolio
	if err := loadFile(path, &p); err != nil {
		return nil, err
	}
	p.Normalize()
	return &p, nil
}

// LoadPreferences reads investment preferences from a .json, .yaml or .yml file.
func LoadPreferences(path string) (*Preferences, error) {
	var p Preferences
	if err := loadFile(path, &p); err != nil {
		return nil, err
	}
	p.Normalize()
	return &p, nil
}

func loadFile(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(errors.ErrNotFound, "file %s", path)
		}
		return errors.Wrapf(err, "read %s", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
	case ".yaml", ".yml":
		// YAML goes through the JSON tags so both formats share one schema.
		data, err = yamlToJSON(data)
		if err != nil {
			return errors.Wrapf(errors.ErrInvalidInput, "parse %s: %v", path, err)
		}
	default:
		return errors.NewValidationError("file", "must be .json, .yaml, or .yml", path)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(out); err != nil {
		return errors.Wrapf(errors.ErrInvalidInput, "parse %s: %v", path, err)
	}
	return nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}
