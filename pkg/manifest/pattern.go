package manifest

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrInvalidPath = errors.New("invalid path template")

	// Any run without a slash, colon, plus or whitespace names a parameter.
	paramName = regexp.MustCompile(`^[^/:+\s]+$`)
)

const (
	paramSegment    = `/[^/]+`
	catchAllSegment = `/.+`
)

// Pattern is a compiled http.path template.
//
//	/users          literal, matches exactly
//	/users/:id      :id matches one non-empty segment
//	/files/:path+   :path+ matches one or more trailing segments
type Pattern struct {
	template string
	re       *regexp.Regexp
}

// CompilePattern compiles a path template. The result is anchored at both ends.
func CompilePattern(template string) (*Pattern, error) {
	if !strings.HasPrefix(template, "/") {
		return nil, fmt.Errorf("%w %q: must start with /", ErrInvalidPath, template)
	}

	var b strings.Builder
	b.WriteString("^")

	if template != "/" {
		segs := strings.Split(template[1:], "/")
		for i, seg := range segs {
			switch {
			case seg == "":
				return nil, fmt.Errorf("%w %q: empty segment", ErrInvalidPath, template)

			case strings.HasPrefix(seg, ":"):
				name := seg[1:]
				rest := strings.HasSuffix(name, "+")
				if rest {
					name = strings.TrimSuffix(name, "+")
				}
				if !paramName.MatchString(name) {
					return nil, fmt.Errorf("%w %q: bad parameter %q", ErrInvalidPath, template, seg)
				}
				if rest {
					if i != len(segs)-1 {
						return nil, fmt.Errorf("%w %q: %q must be the last segment", ErrInvalidPath, template, seg)
					}
					b.WriteString(catchAllSegment)
					continue
				}
				b.WriteString(paramSegment)

			case strings.ContainsAny(seg, ":+"):
				return nil, fmt.Errorf("%w %q: unmatched dynamic marker in %q", ErrInvalidPath, template, seg)

			default:
				b.WriteString("/")
				b.WriteString(regexp.QuoteMeta(seg))
			}
		}
	} else {
		b.WriteString("/")
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidPath, template, err)
	}
	return &Pattern{template: template, re: re}, nil
}

// MustCompilePattern is CompilePattern for templates known to be valid.
func MustCompilePattern(template string) *Pattern {
	p, err := CompilePattern(template)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Pattern) Match(path string) bool { return p.re.MatchString(path) }

// Template returns the path template the pattern was compiled from.
func (p *Pattern) Template() string { return p.template }

// String returns the anchored regular expression.
func (p *Pattern) String() string { return p.re.String() }
