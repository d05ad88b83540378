package manifest

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Validate normalizes every function in place and checks it.
// Errors name the function index and, where known, its name.
func (c *Config) Validate() error {
	if c.Functions == nil {
		return errors.New("functions are required")
	}

	seen := make(map[string]int, len(c.Functions))
	for i := range c.Functions {
		fn := &c.Functions[i]
		if err := fn.normalize(); err != nil {
			return fmt.Errorf("function %d: %w", i, err)
		}
		if err := fn.validate(); err != nil {
			return fmt.Errorf("function %d (%s): %w", i, fn.Name, err)
		}
		if j, dup := seen[fn.Name]; dup {
			return fmt.Errorf("function %d (%s): name already used by function %d", i, fn.Name, j)
		}
		seen[fn.Name] = i
	}
	return nil
}

func (f *FunctionSpec) normalize() error {
	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" {
		return errors.New("name is required")
	}
	f.Handler = strings.TrimSpace(f.Handler)

	p := strings.TrimSpace(f.HTTP.Path)
	if p == "" {
		return errors.New("http.path is required")
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if p != "/" {
		p = path.Clean(p)
	}
	f.HTTP.Path = p

	for i, m := range f.HTTP.Method {
		f.HTTP.Method[i] = Method(strings.ToUpper(strings.TrimSpace(string(m))))
	}
	return nil
}

func (f *FunctionSpec) validate() error {
	if f.Handler == "" {
		return errors.New("handler is required")
	}
	if path.IsAbs(f.Handler) || strings.HasPrefix(path.Clean(f.Handler), "..") {
		return fmt.Errorf("handler %q must be relative to the project root", f.Handler)
	}
	if len(f.HTTP.Method) == 0 {
		return errors.New("http.method must list at least one method")
	}
	for _, m := range f.HTTP.Method {
		if _, ok := knownMethods[m]; !ok {
			return fmt.Errorf("http.method %q is not supported", m)
		}
	}
	if _, err := CompilePattern(f.HTTP.Path); err != nil {
		return err
	}
	if f.Timeout < 0 {
		return errors.New("timeout must be >= 0")
	}
	if f.AsynchronousThreshold < 0 {
		return errors.New("asynchronousThreshold must be >= 0")
	}
	return nil
}
