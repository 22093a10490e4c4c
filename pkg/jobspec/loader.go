package jobspec

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads and validates a job spec from the given file path.
//
// The file format is determined by extension: .yaml/.yml for YAML, .json for
// JSON. If the extension is unrecognized, YAML is attempted first, then JSON.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("job spec file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read job spec file: %w", err)
	}
	return LoadFromBytes(data, path)
}

// LoadFromBytes parses and validates a job spec from raw bytes.
//
// The path parameter is used for error messages and format detection.
func LoadFromBytes(data []byte, path string) (*Spec, error) {
	if len(data) == 0 {
		return nil, errors.New("job spec file is empty")
	}

	spec, err := parseSpec(data, path)
	if err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

func parseSpec(data []byte, path string) (*Spec, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".json":
		return parseJSON(data)
	case ".yaml", ".yml":
		return parseYAML(data)
	default:
		spec, yamlErr := parseYAML(data)
		if yamlErr == nil {
			return spec, nil
		}
		spec, jsonErr := parseJSON(data)
		if jsonErr == nil {
			return spec, nil
		}
		return nil, fmt.Errorf("failed to parse job spec (tried YAML and JSON): %w", yamlErr)
	}
}

func parseJSON(data []byte) (*Spec, error) {
	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("invalid JSON in job spec: %w", err)
	}
	return &spec, nil
}

func parseYAML(data []byte) (*Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("invalid YAML in job spec: %w", err)
	}
	return &spec, nil
}
