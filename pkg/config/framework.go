package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fleetfn/fleet-dev/pkg/manifest"
	"gopkg.in/yaml.v3"
)

// Framework describes a project whose functions are compiled by a framework
// toolchain. The gateway then routes from the framework's build manifest and
// does not run its own compiler.
type Framework struct {
	ConfigPath   string
	ManifestPath string
	CompiledDir  string
	Functions    []manifest.FunctionSpec
}

// framework config file -> build manifest written by that framework.
var frameworkManifests = []struct {
	config   string
	manifest string
}{
	{config: "triton.config.js", manifest: filepath.Join(".triton", "build-manifest.json")},
}

type frameworkDocument struct {
	CompiledFunctionsDir string    `yaml:"compiledFunctionsDir"`
	Functions            yaml.Node `yaml:"functions"`
}

// DetectFramework returns the framework manifest for root, or nil when the
// project does not use a known framework.
func DetectFramework(root string) (*Framework, error) {
	for _, fw := range frameworkManifests {
		cfgPath := filepath.Join(root, fw.config)
		if _, err := os.Stat(cfgPath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", cfgPath, err)
		}
		return loadFramework(root, cfgPath, filepath.Join(root, fw.manifest))
	}
	return nil, nil
}

func loadFramework(root, cfgPath, manifestPath string) (*Framework, error) {
	content, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", manifestPath, err)
	}

	// JSON is valid YAML; yaml.Node keeps the function order.
	var doc frameworkDocument
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", manifestPath, err)
	}
	fns, err := decodeFunctionsNode(&doc.Functions)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", manifestPath, err)
	}
	if doc.CompiledFunctionsDir == "" {
		return nil, fmt.Errorf("parse %s: compiledFunctionsDir is required", manifestPath)
	}

	dir := doc.CompiledFunctionsDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return &Framework{
		ConfigPath:   cfgPath,
		ManifestPath: manifestPath,
		CompiledDir:  dir,
		Functions:    fns,
	}, nil
}
