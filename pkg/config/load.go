// Package config locates and parses the project function configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fleetfn/fleet-dev/pkg/manifest"
	"github.com/joho/godotenv"
)

// ConfigFiles are the recognized config file names, in lookup order.
var ConfigFiles = []string{"fleet.yml", "fleet.json", "fleet.toml"}

// DefaultCompiledDir is where compiled handlers live, relative to the project root.
var DefaultCompiledDir = filepath.Join(".fleet", "cache", "functions")

var ErrNoConfig = errors.New("project is missing a fleet.yml file")

type Options struct {
	// EnvFile overrides <root>/.env. A missing default .env is not an error;
	// a missing explicit EnvFile is.
	EnvFile string
}

// Project is a loaded project configuration.
type Project struct {
	Root       string
	ConfigPath string // empty when functions come only from a framework manifest
	Config     manifest.Config
	Framework  *Framework
}

// Load reads the configuration of the project rooted at root.
func Load(root string, opts Options) (Project, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Project{}, err
	}
	p := Project{Root: abs}

	if p.Framework, err = DetectFramework(abs); err != nil {
		return Project{}, err
	}

	path, err := findConfig(abs)
	if err != nil && !(errors.Is(err, ErrNoConfig) && p.Framework != nil) {
		return Project{}, err
	}
	if path != "" {
		cfg, err := LoadFile(path)
		if err != nil {
			return Project{}, err
		}
		p.ConfigPath, p.Config = path, cfg
	}
	if p.Framework != nil {
		p.Config.Functions = p.Framework.Functions
	}

	if err := p.Config.Validate(); err != nil {
		return Project{}, fmt.Errorf("%s: %w", p.source(), err)
	}

	env, err := readEnvFile(abs, opts.EnvFile)
	if err != nil {
		return Project{}, err
	}
	for k, v := range p.Config.Env {
		env[k] = v
	}
	p.Config.Env = env
	return p, nil
}

// LoadFile parses a single config file, choosing the decoder by extension.
// It does not run Config.Validate.
func LoadFile(path string) (manifest.Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return manifest.Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	var cfg manifest.Config
	switch filepath.Ext(path) {
	case ".yml", ".yaml":
		cfg, err = decodeYAML(content)
	case ".json":
		cfg, err = decodeJSON(content)
	case ".toml":
		cfg, err = decodeTOML(content)
	default:
		return manifest.Config{}, fmt.Errorf("%s: unsupported config format", path)
	}
	if err != nil {
		return manifest.Config{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// CompiledDir is the compiled-output directory for the project.
func (p Project) CompiledDir() string {
	if p.Framework != nil {
		return p.Framework.CompiledDir
	}
	return filepath.Join(p.Root, DefaultCompiledDir)
}

// OwnsCompiler reports whether the gateway must compile handlers itself.
func (p Project) OwnsCompiler() bool { return p.Framework == nil }

// WatchPaths lists the files whose changes require a reload.
func (p Project) WatchPaths() []string {
	paths := make([]string, 0, len(ConfigFiles)+1)
	for _, name := range ConfigFiles {
		paths = append(paths, filepath.Join(p.Root, name))
	}
	if p.Framework != nil {
		paths = append(paths, p.Framework.ManifestPath)
	}
	return paths
}

// Manifest builds the routable manifest for the project.
func (p Project) Manifest() (manifest.Manifest, error) {
	return manifest.Build(p.Root, p.CompiledDir(), p.Config.Functions)
}

func (p Project) source() string {
	if p.Framework != nil {
		return filepath.Base(p.Framework.ManifestPath)
	}
	return filepath.Base(p.ConfigPath)
}

func findConfig(root string) (string, error) {
	for _, name := range ConfigFiles {
		path := filepath.Join(root, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", path, err)
		}
	}
	return "", ErrNoConfig
}

func readEnvFile(root, explicit string) (map[string]string, error) {
	path := explicit
	if path == "" {
		path = filepath.Join(root, ".env")
		if _, err := os.Stat(path); err != nil {
			return map[string]string{}, nil
		}
	}
	env, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	return env, nil
}
