package manifest

// Method is an HTTP verb accepted in a function's http.method list.
type Method string

const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodPatch   Method = "PATCH"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
	MethodDelete  Method = "DELETE"
)

var knownMethods = map[Method]struct{}{
	MethodGet:     {},
	MethodPost:    {},
	MethodPut:     {},
	MethodPatch:   {},
	MethodHead:    {},
	MethodOptions: {},
	MethodDelete:  {},
}

// DefaultCompiledExt is the extension given to compiled handler artifacts.
const DefaultCompiledExt = ".wasm"

// Config is the project function configuration (fleet.yml / fleet.json / fleet.toml).
type Config struct {
	Env       map[string]string `json:"env,omitempty" yaml:"env,omitempty" toml:"env,omitempty"`
	Functions []FunctionSpec    `json:"functions" yaml:"-" toml:"functions"`
	Regions   []string          `json:"regions,omitempty" yaml:"regions,omitempty" toml:"regions,omitempty"`
}

// FunctionSpec is a single declared function. It is immutable once loaded.
type FunctionSpec struct {
	Name                  string   `json:"name" yaml:"name" toml:"name"`
	HTTP                  HTTPSpec `json:"http" yaml:"http" toml:"http"`
	Handler               string   `json:"handler" yaml:"handler" toml:"handler"`
	Timeout               int      `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`                                           // seconds
	AsynchronousThreshold int      `json:"asynchronousThreshold,omitempty" yaml:"asynchronousThreshold,omitempty" toml:"asynchronousThreshold,omitempty"` // seconds
}

// HTTPSpec is the HTTP trigger of a function.
type HTTPSpec struct {
	Method []Method `json:"method" yaml:"method" toml:"method"`
	Path   string   `json:"path" yaml:"path" toml:"path"`
}

// Entry is the routable form of a FunctionSpec.
type Entry struct {
	FunctionSpec

	SourceFilePath   string
	CompiledFilePath string
	Pattern          *Pattern
}

// Manifest is the ordered routing table plus the compiler entry points.
// Functions keep configuration order; the first match wins.
type Manifest struct {
	Functions []Entry
	// Entries maps a logical module name (relative dir + base name, no extension)
	// to the absolute source path.
	Entries map[string]string
}

// allowsMethod reports whether m is in the entry's method set.
func (e Entry) allowsMethod(m string) bool {
	for _, x := range e.HTTP.Method {
		if string(x) == m {
			return true
		}
	}
	return false
}

// Match reports whether a request with the given method and path is routed to e.
func (e Entry) Match(method, path string) bool {
	return e.allowsMethod(method) && e.Pattern != nil && e.Pattern.Match(path)
}
