// Package manifest turns declared functions into a routable manifest.
package manifest

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Build derives one Entry per spec, in order. rootDir and compiledDir should be
// absolute; the paths stored on entries are joined from them.
//
// A spec with handler "api/users.go" gets the module name "api/users", the
// source path rootDir/api/users.go and the compiled path compiledDir/api/users.wasm.
func Build(rootDir, compiledDir string, specs []FunctionSpec) (Manifest, error) {
	m := Manifest{
		Functions: make([]Entry, 0, len(specs)),
		Entries:   make(map[string]string, len(specs)),
	}

	for i, spec := range specs {
		pat, err := CompilePattern(spec.HTTP.Path)
		if err != nil {
			return Manifest{}, fmt.Errorf("function %d (%s): %w", i, spec.Name, err)
		}

		source := filepath.Join(rootDir, filepath.FromSlash(spec.Handler))
		rel, err := filepath.Rel(rootDir, source)
		if err != nil {
			return Manifest{}, fmt.Errorf("function %d (%s): %w", i, spec.Name, err)
		}
		module := ModuleName(rel)

		m.Entries[module] = source
		m.Functions = append(m.Functions, Entry{
			FunctionSpec:     spec,
			SourceFilePath:   source,
			CompiledFilePath: filepath.Join(compiledDir, filepath.FromSlash(module)+DefaultCompiledExt),
			Pattern:          pat,
		})
	}
	return m, nil
}

// ModuleName strips the extension from a root-relative source path and
// returns it slash-separated, e.g. "api/users.go" -> "api/users".
func ModuleName(rel string) string {
	rel = filepath.ToSlash(rel)
	return strings.TrimSuffix(rel, filepath.Ext(rel))
}

// Lookup returns the first entry matching method and path.
func (m Manifest) Lookup(method, path string) (Entry, bool) {
	for _, e := range m.Functions {
		if e.Match(method, path) {
			return e, true
		}
	}
	return Entry{}, false
}
