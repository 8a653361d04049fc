package uritemplate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultFragment is the expression used for a placeholder declared without
// an explicit fragment: one or more characters other than '/', non-greedy.
const DefaultFragment = `[^/]+?`

// trailingGroup lets a pattern also match paths that extend its template.
const trailingGroup = `(?:/.*)?`

// ErrInvalidTemplate is returned when a template cannot be compiled.
var ErrInvalidTemplate = errors.New("uritemplate: invalid template")

// groupName strips capture group names when comparing patterns.
var groupName = regexp.MustCompile(`\(\?P?<[^>]+>`)

// Pattern is a compiled URI template. It is immutable and safe for
// concurrent use.
type Pattern struct {
	// template is the original template string.
	template string
	// regexp matches a path with the leading slash removed.
	regexp *regexp.Regexp
	// exact matches only paths that do not extend the template.
	exact *regexp.Regexp
	// reverse is the template with %s placeholders for Sprintf.
	reverse string
	// names are the placeholder names in order.
	names []string
	// values validate each placeholder value for Expand.
	values []valueMatcher
	// nonDefault flags placeholders declared with an explicit fragment or
	// macro.
	nonDefault []bool
	// index maps a name to its submatch index in regexp.
	index []int
}

// Compile parses a URI template and returns the compiled pattern.
// It returns an error wrapping ErrInvalidTemplate when braces are
// unbalanced, a placeholder has no name, a name is repeated, or a
// placeholder fragment is not a valid regular expression.
func Compile(template string) (*Pattern, error) {
	tpl := trimSlashes(template)

	idxs, err := braceIndices(tpl)
	if err != nil {
		return nil, err
	}

	var (
		body       strings.Builder
		reverse    strings.Builder
		names      []string
		values     []valueMatcher
		nonDefault []bool
		end        int
	)

	reverse.WriteByte('/')

	for i := 0; i < len(idxs); i += 2 {
		raw := tpl[end:idxs[i]]
		end = idxs[i+1]

		name, expr, explicit := splitPlaceholder(tpl[idxs[i]+1 : end-1])
		if name == "" {
			return nil, fmt.Errorf("%w: missing name in %q from %q", ErrInvalidTemplate, tpl[idxs[i]:end], template)
		}

		frag, err := resolveFragment(expr, explicit)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid pattern %q in variable %q: %w", ErrInvalidTemplate, expr, name, err)
		}

		writeLiteral(&body, raw)
		fmt.Fprintf(&body, "(?<%s>%s)", name, frag.source)
		reverse.WriteString(strings.ReplaceAll(raw, "%", "%%"))
		reverse.WriteString("%s")

		names = append(names, name)
		values = append(values, frag.check)
		nonDefault = append(nonDefault, frag.custom)
	}

	raw := tpl[end:]
	writeLiteral(&body, raw)
	reverse.WriteString(strings.ReplaceAll(raw, "%", "%%"))

	if err := checkDuplicateNames(names); err != nil {
		return nil, err
	}

	source := strings.TrimSuffix(body.String(), "/")

	re, err := compileRegexp("^" + source + trailingGroup + "$")
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidTemplate, template, err)
	}

	exact, err := compileRegexp("^" + source + "/?$")
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidTemplate, template, err)
	}

	index := make([]int, len(names))
	for i, name := range names {
		index[i] = re.SubexpIndex(name)
	}

	return &Pattern{
		template:   template,
		regexp:     re,
		exact:      exact,
		reverse:    reverse.String(),
		names:      names,
		values:     values,
		nonDefault: nonDefault,
		index:      index,
	}, nil
}

// MustCompile is like Compile but panics if the template cannot be compiled.
func MustCompile(template string) *Pattern {
	p, err := Compile(template)
	if err != nil {
		panic(err)
	}

	return p
}

// Template returns the template the pattern was compiled from.
func (p *Pattern) Template() string {
	return p.template
}

// String returns the compiled regular expression.
func (p *Pattern) String() string {
	return p.regexp.String()
}

// Len returns the length of the compiled regular expression. Longer
// patterns pin more of a path with literal text.
func (p *Pattern) Len() int {
	return len(p.regexp.String())
}

// Names returns the placeholder names in template order.
func (p *Pattern) Names() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)

	return out
}

// NonDefaultNames returns the names of placeholders declared with an
// explicit fragment, in template order.
func (p *Pattern) NonDefaultNames() []string {
	var out []string
	for i, name := range p.names {
		if p.nonDefault[i] {
			out = append(out, name)
		}
	}

	return out
}

// IsDefault reports whether the named placeholder uses the default
// fragment. Unknown names report false.
func (p *Pattern) IsDefault(name string) bool {
	for i, n := range p.names {
		if n == name {
			return !p.nonDefault[i]
		}
	}

	return false
}

// GroupCount returns the number of named groups.
func (p *Pattern) GroupCount() int {
	return len(p.names)
}

// NonDefaultGroupCount returns the number of named groups declared with an
// explicit fragment.
func (p *Pattern) NonDefaultGroupCount() int {
	n := 0
	for _, nd := range p.nonDefault {
		if nd {
			n++
		}
	}

	return n
}

// EqualModuloNames reports whether two patterns are identical once group
// names are ignored, e.g. "/fruit/{name}" and "/fruit/{kind}".
func (p *Pattern) EqualModuloNames(other *Pattern) bool {
	if other == nil {
		return false
	}

	a := groupName.ReplaceAllString(p.regexp.String(), "(")
	b := groupName.ReplaceAllString(other.regexp.String(), "(")

	return a == b
}

// Expand builds a path from the template, substituting each placeholder
// with its value. Every value must satisfy its placeholder's fragment.
func (p *Pattern) Expand(params map[string]string) (string, error) {
	args := make([]any, len(p.names))
	for i, name := range p.names {
		v, ok := params[name]
		if !ok {
			return "", fmt.Errorf("uritemplate: missing variable %q", name)
		}
		if !p.values[i].MatchString(v) {
			return "", fmt.Errorf("uritemplate: variable %q doesn't match, expected %q", name, p.values[i].String())
		}
		args[i] = v
	}

	return fmt.Sprintf(p.reverse, args...), nil
}

// splitPlaceholder splits the text inside a pair of braces into a name and
// an optional fragment. Whitespace around the colon is trimmed.
func splitPlaceholder(s string) (name, fragment string, explicit bool) {
	name, fragment, explicit = strings.Cut(s, ":")
	name = strings.TrimSpace(name)
	if explicit {
		fragment = strings.TrimSpace(fragment)
	}

	return name, fragment, explicit
}

// writeLiteral appends literal template text to the pattern. Each segment
// between slashes is quoted; the slashes themselves are kept bare.
func writeLiteral(b *strings.Builder, raw string) {
	if raw == "" {
		return
	}

	for i, segment := range strings.Split(raw, "/") {
		if i > 0 {
			b.WriteByte('/')
		}
		if segment != "" {
			b.WriteString(quote(segment))
		}
	}
}

// quote wraps s in \Q...\E so that every character matches literally.
// An embedded \E is split out and escaped.
func quote(s string) string {
	return `\Q` + strings.ReplaceAll(s, `\E`, `\E\\E\Q`) + `\E`
}

// trimSlashes removes one leading and one trailing slash.
func trimSlashes(s string) string {
	s = strings.TrimPrefix(s, "/")
	return strings.TrimSuffix(s, "/")
}

// braceIndices returns the start and end+1 indices of each top-level
// {...} pair in s. Returns an error if braces are unbalanced.
func braceIndices(s string) ([]int, error) {
	var (
		idxs  []int
		level int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			if level++; level == 1 {
				idxs = append(idxs, i)
			}
		case '}':
			if level--; level == 0 {
				idxs = append(idxs, i+1)
			} else if level < 0 {
				return nil, fmt.Errorf("%w: unbalanced braces in %q", ErrInvalidTemplate, s)
			}
		}
	}
	if level != 0 {
		return nil, fmt.Errorf("%w: unbalanced braces in %q", ErrInvalidTemplate, s)
	}
	return idxs, nil
}

// checkDuplicateNames returns an error if any placeholder name is repeated.
func checkDuplicateNames(names []string) error {
	seen := make(map[string]bool, len(names))
	for _, v := range names {
		if seen[v] {
			return fmt.Errorf("%w: duplicated variable %q", ErrInvalidTemplate, v)
		}
		seen[v] = true
	}
	return nil
}
