package manifest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spec(name, handler, path string, methods ...Method) FunctionSpec {
	return FunctionSpec{Name: name, Handler: handler, HTTP: HTTPSpec{Method: methods, Path: path}}
}

func TestBuildDerivesPaths(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "proj")
	out := filepath.Join(root, ".fleet", "cache", "functions")

	m, err := Build(root, out, []FunctionSpec{
		spec("hello", "hello.go", "/hello/:id", MethodGet),
		spec("users", "api/users.go", "/users", MethodGet, MethodPost),
	})
	require.NoError(t, err)
	require.Len(t, m.Functions, 2)

	hello := m.Functions[0]
	assert.Equal(t, "hello", hello.Name)
	assert.Equal(t, filepath.Join(root, "hello.go"), hello.SourceFilePath)
	assert.Equal(t, filepath.Join(out, "hello.wasm"), hello.CompiledFilePath)

	users := m.Functions[1]
	assert.Equal(t, filepath.Join(root, "api", "users.go"), users.SourceFilePath)
	assert.Equal(t, filepath.Join(out, "api", "users.wasm"), users.CompiledFilePath)

	assert.Equal(t, map[string]string{
		"hello":     filepath.Join(root, "hello.go"),
		"api/users": filepath.Join(root, "api", "users.go"),
	}, m.Entries)
}

func TestBuildRejectsMalformedTemplate(t *testing.T) {
	_, err := Build("/p", "/p/out", []FunctionSpec{spec("bad", "bad.go", "/x/:", MethodGet)})
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestLookupScenario(t *testing.T) {
	m, err := Build("/p", "/p/out", []FunctionSpec{spec("hello", "hello.go", "/hello/:id", MethodGet)})
	require.NoError(t, err)

	e, ok := m.Lookup("GET", "/hello/42")
	require.True(t, ok)
	assert.Equal(t, "hello", e.Name)

	_, ok = m.Lookup("GET", "/hello")
	assert.False(t, ok)
	_, ok = m.Lookup("POST", "/hello/42")
	assert.False(t, ok)
	_, ok = m.Lookup("GET", "/missing")
	assert.False(t, ok)
}

func TestLookupMethodMustBeInSet(t *testing.T) {
	m, err := Build("/p", "/p/out", []FunctionSpec{spec("a", "a.go", "/a", MethodPost, MethodPut)})
	require.NoError(t, err)

	for _, method := range []string{"GET", "DELETE", "PATCH", "HEAD", "OPTIONS", "post"} {
		_, ok := m.Lookup(method, "/a")
		assert.False(t, ok, method)
	}
	for _, method := range []string{"POST", "PUT"} {
		_, ok := m.Lookup(method, "/a")
		assert.True(t, ok, method)
	}
}

func TestLookupFirstDeclaredWins(t *testing.T) {
	m, err := Build("/p", "/p/out", []FunctionSpec{
		spec("specific", "s.go", "/items/:id", MethodGet),
		spec("catchall", "c.go", "/items/:rest+", MethodGet),
	})
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		e, ok := m.Lookup("GET", "/items/1")
		require.True(t, ok)
		assert.Equal(t, "specific", e.Name)
	}
	e, ok := m.Lookup("GET", "/items/1/2")
	require.True(t, ok)
	assert.Equal(t, "catchall", e.Name)
}

func TestValidateNormalizes(t *testing.T) {
	cfg := Config{Functions: []FunctionSpec{
		{Name: " hello ", Handler: "hello.go", HTTP: HTTPSpec{Method: []Method{"get"}, Path: "hello//x/"}},
	}}
	require.NoError(t, cfg.Validate())

	fn := cfg.Functions[0]
	assert.Equal(t, "hello", fn.Name)
	assert.Equal(t, "/hello/x", fn.HTTP.Path)
	assert.Equal(t, []Method{MethodGet}, fn.HTTP.Method)
}

func TestValidateErrors(t *testing.T) {
	cases := map[string]Config{
		"missing functions": {},
		"no name":           {Functions: []FunctionSpec{spec("", "a.go", "/a", MethodGet)}},
		"no handler":        {Functions: []FunctionSpec{spec("a", "", "/a", MethodGet)}},
		"absolute handler":  {Functions: []FunctionSpec{spec("a", "/etc/a.go", "/a", MethodGet)}},
		"escaping handler":  {Functions: []FunctionSpec{spec("a", "../a.go", "/a", MethodGet)}},
		"no methods":        {Functions: []FunctionSpec{spec("a", "a.go", "/a")}},
		"bad method":        {Functions: []FunctionSpec{spec("a", "a.go", "/a", "FETCH")}},
		"no path":           {Functions: []FunctionSpec{spec("a", "a.go", "", MethodGet)}},
		"bad path":          {Functions: []FunctionSpec{spec("a", "a.go", "/a/:", MethodGet)}},
		"duplicate name": {Functions: []FunctionSpec{
			spec("a", "a.go", "/a", MethodGet),
			spec("a", "b.go", "/b", MethodGet),
		}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateAcceptsPunctuatedParams(t *testing.T) {
	cfg := Config{Functions: []FunctionSpec{
		spec("user", "user.go", "/users/:user-id", MethodGet),
		spec("org", "org.go", "/v1/:org.name/items", MethodGet),
	}}
	require.NoError(t, cfg.Validate())

	m, err := Build("/project", "/project/out", cfg.Functions)
	require.NoError(t, err)
	e, ok := m.Lookup("GET", "/users/u-1")
	require.True(t, ok)
	assert.Equal(t, "user", e.Name)
}
