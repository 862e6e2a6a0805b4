package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// loadEvent reads an event file and returns it as JSON, the way the Lambda
// runtime delivers events. YAML and TOML files are converted. An empty path
// yields an empty object.
func loadEvent(path string) (json.RawMessage, error) {
	if path == "" {
		return json.RawMessage(`{}`), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read event")
	}

	var event any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if !json.Valid(data) {
			return nil, errors.Newf("invalid JSON in %s", path)
		}
		return json.RawMessage(data), nil
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &event); err != nil {
			return nil, errors.Wrapf(err, "failed to decode %s", path)
		}
	case ".toml":
		var table map[string]any
		if _, err := toml.Decode(string(data), &table); err != nil {
			return nil, errors.Wrapf(err, "failed to decode %s", path)
		}
		event = table
	default:
		return nil, errors.Newf("unsupported event file extension %q (supported: .json, .yaml, .yml, .toml)", ext)
	}

	out, err := json.Marshal(event)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to convert %s to JSON", path)
	}
	return out, nil
}
