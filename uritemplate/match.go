package uritemplate

import "strings"

// PathMatch is the result of matching a Pattern against a concrete path.
type PathMatch struct {
	// Matched reports whether the path matched the pattern, either exactly
	// or as a prefix of a longer path.
	Matched bool

	// Full reports whether the path matched without extending past the
	// template. A single trailing slash still counts as a full match.
	Full bool

	// Params maps each placeholder name to the text it captured. It is nil
	// when the path did not match.
	Params map[string]string
}

// Match matches the pattern against path. The leading slash of the path is
// ignored. Matching is case-sensitive and percent-encoded sequences are
// compared as-is.
func (p *Pattern) Match(path string) PathMatch {
	path = strings.TrimPrefix(path, "/")

	matches := p.regexp.FindStringSubmatch(path)
	if matches == nil {
		return PathMatch{}
	}

	params := make(map[string]string, len(p.names))
	for i, name := range p.names {
		params[name] = matches[p.index[i]]
	}

	return PathMatch{
		Matched: true,
		Full:    p.exact.MatchString(path),
		Params:  params,
	}
}

// MatchString reports whether path matches the pattern.
func (p *Pattern) MatchString(path string) bool {
	return p.regexp.MatchString(strings.TrimPrefix(path, "/"))
}
