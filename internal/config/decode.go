package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// decode reads a config file body. YAML is converted to JSON first so both
// formats go through the same strict decoder: unknown fields and trailing
// documents are errors.
func decode(path string, data []byte) (*Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("yaml: %w", err)
		}
		b, err := json.Marshal(stringKeys(doc))
		if err != nil {
			return nil, fmt.Errorf("yaml to json: %w", err)
		}
		data = b
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("trailing data after config object")
		}
		return nil, err
	}
	return &cfg, nil
}

// stringKeys rewrites YAML maps with non-string keys (e.g. numeric ids) into
// map[string]any so the tree can be marshaled as JSON.
func stringKeys(v any) any {
	switch node := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(node))
		for k, child := range node {
			out[fmt.Sprint(k)] = stringKeys(child)
		}
		return out
	case map[string]any:
		for k, child := range node {
			node[k] = stringKeys(child)
		}
		return node
	case []any:
		for i, child := range node {
			node[i] = stringKeys(child)
		}
		return node
	}
	return v
}
