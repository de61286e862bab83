package character

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a character definition from a YAML or JSON file, selected by
// extension (.yaml/.yml vs anything else), and validates it before returning.
func LoadFile(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read character file: %w", err)
	}

	var def Definition
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		if err := yaml.Unmarshal(data, &def); err != nil {
			return Definition{}, fmt.Errorf("parse character yaml %s: %w", path, err)
		}
	} else {
		if err := json.Unmarshal(data, &def); err != nil {
			return Definition{}, fmt.Errorf("parse character json %s: %w", path, err)
		}
	}

	if err := Validate(def); err != nil {
		return Definition{}, fmt.Errorf("character file %s: %w", path, err)
	}
	return def, nil
}
