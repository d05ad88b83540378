package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/fleetfn/fleet-dev/pkg/manifest"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
	sigsyaml "sigs.k8s.io/yaml"
)

type yamlDocument struct {
	Env       map[string]any `yaml:"env"`
	Regions   []string       `yaml:"regions"`
	Functions yaml.Node      `yaml:"functions"`
}

func decodeYAML(content []byte) (manifest.Config, error) {
	jsonData, err := sigsyaml.YAMLToJSON(content)
	if err != nil {
		return manifest.Config{}, fmt.Errorf("convert yaml to json: %w", err)
	}
	if err := validateDocument(jsonData); err != nil {
		return manifest.Config{}, err
	}

	var doc yamlDocument
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return manifest.Config{}, err
	}
	fns, err := decodeFunctionsNode(&doc.Functions)
	if err != nil {
		return manifest.Config{}, err
	}
	return manifest.Config{Env: stringifyEnv(doc.Env), Regions: doc.Regions, Functions: fns}, nil
}

type jsonDocument struct {
	Env       map[string]any  `json:"env"`
	Regions   []string        `json:"regions"`
	Functions json.RawMessage `json:"functions"`
}

func decodeJSON(content []byte) (manifest.Config, error) {
	if err := validateDocument(content); err != nil {
		return manifest.Config{}, err
	}

	var doc jsonDocument
	if err := json.Unmarshal(content, &doc); err != nil {
		return manifest.Config{}, err
	}

	cfg := manifest.Config{Env: stringifyEnv(doc.Env), Regions: doc.Regions}
	raw := bytes.TrimSpace(doc.Functions)
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &cfg.Functions); err != nil {
			return manifest.Config{}, fmt.Errorf("functions: %w", err)
		}
		return cfg, nil
	}

	// Objects go through yaml.Node so key order survives.
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return manifest.Config{}, fmt.Errorf("functions: %w", err)
	}
	fns, err := decodeFunctionsNode(&node)
	if err != nil {
		return manifest.Config{}, err
	}
	cfg.Functions = fns
	return cfg, nil
}

type tomlDocument struct {
	Env       map[string]any          `toml:"env"`
	Regions   []string                `toml:"regions"`
	Functions []manifest.FunctionSpec `toml:"functions"`
}

func decodeTOML(content []byte) (manifest.Config, error) {
	var generic map[string]any
	if err := toml.Unmarshal(content, &generic); err != nil {
		return manifest.Config{}, err
	}
	jsonData, err := json.Marshal(generic)
	if err != nil {
		return manifest.Config{}, fmt.Errorf("convert toml to json: %w", err)
	}
	if err := validateDocument(jsonData); err != nil {
		return manifest.Config{}, err
	}

	var doc tomlDocument
	if err := toml.Unmarshal(content, &doc); err != nil {
		return manifest.Config{}, err
	}
	return manifest.Config{Env: stringifyEnv(doc.Env), Regions: doc.Regions, Functions: doc.Functions}, nil
}

// decodeFunctionsNode accepts either a sequence of functions or a mapping of
// name -> function. Mapping order is declaration order.
func decodeFunctionsNode(n *yaml.Node) ([]manifest.FunctionSpec, error) {
	if n.Kind == yaml.DocumentNode && len(n.Content) == 1 {
		n = n.Content[0]
	}

	switch n.Kind {
	case 0:
		return nil, nil
	case yaml.SequenceNode:
		var fns []manifest.FunctionSpec
		if err := n.Decode(&fns); err != nil {
			return nil, fmt.Errorf("functions: %w", err)
		}
		return fns, nil
	case yaml.MappingNode:
		fns := make([]manifest.FunctionSpec, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			var fn manifest.FunctionSpec
			if err := val.Decode(&fn); err != nil {
				return nil, fmt.Errorf("functions.%s: %w", key.Value, err)
			}
			if fn.Name == "" {
				fn.Name = key.Value
			}
			fns = append(fns, fn)
		}
		return fns, nil
	default:
		return nil, fmt.Errorf("functions: expected a list or a mapping (line %d)", n.Line)
	}
}

func stringifyEnv(in map[string]any) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = fmt.Sprint(v)
	}
	return out
}
