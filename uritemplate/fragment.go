package uritemplate

import (
	"fmt"
	"regexp"
	"sync"
)

// valueMatcher validates one placeholder value for Expand.
type valueMatcher interface {
	MatchString(string) bool
	String() string
}

// boundedMatcher also caps the value length, for macros whose limit RE2
// cannot express cheaply.
type boundedMatcher struct {
	*regexp.Regexp
	max int
}

func (m boundedMatcher) MatchString(s string) bool {
	return len(s) <= m.max && m.Regexp.MatchString(s)
}

// macro is a named fragment. A placeholder that names one is a custom
// group, so it ranks like any explicit fragment.
type macro struct {
	source string
	max    int
}

var macros = map[string]macro{
	"uuid":     {source: `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`},
	"int":      {source: `[0-9]+`},
	"float":    {source: `[0-9]*\.?[0-9]+`},
	"slug":     {source: `[a-zA-Z0-9]+(?:-[a-zA-Z0-9]+)*`},
	"alpha":    {source: `[a-zA-Z]+`},
	"alphanum": {source: `[a-zA-Z0-9]+`},
	"date":     {source: `[0-9]{4}-[0-9]{2}-[0-9]{2}`},
	"hex":      {source: `[0-9a-fA-F]+`},
	// RFC 1123 labels of 1-63 characters, 253 in total.
	"domain": {source: `(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)*[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?`, max: 253},
}

// fragment is a resolved placeholder expression.
type fragment struct {
	// source is inserted into the pattern inside the named group.
	source string
	// check validates Expand values against the whole fragment.
	check valueMatcher
	// custom is false only for the default fragment.
	custom bool
}

// resolveFragment turns the text after a placeholder's colon into a
// fragment. A missing or default expression yields DefaultFragment, a
// macro name its expansion, anything else a raw regular expression.
func resolveFragment(expr string, explicit bool) (fragment, error) {
	if !explicit || expr == DefaultFragment {
		return fragment{source: DefaultFragment, check: mustAnchored(DefaultFragment)}, nil
	}

	if m, ok := macros[expr]; ok {
		re := mustAnchored(m.source)
		if m.max > 0 {
			return fragment{source: m.source, check: boundedMatcher{Regexp: re, max: m.max}, custom: true}, nil
		}

		return fragment{source: m.source, check: re, custom: true}, nil
	}

	re, err := anchored(expr)
	if err != nil {
		return fragment{}, err
	}

	return fragment{source: expr, check: re, custom: true}, nil
}

func anchored(source string) (*regexp.Regexp, error) {
	return compileRegexp(fmt.Sprintf("^(?:%s)$", source))
}

func mustAnchored(source string) *regexp.Regexp {
	re, err := anchored(source)
	if err != nil {
		panic(err)
	}

	return re
}

// compiled holds every regexp built from a template, keyed by source.
// Templates are registered at startup, so it stops growing once the
// router is built.
var compiled sync.Map

func compileRegexp(source string) (*regexp.Regexp, error) {
	if re, ok := compiled.Load(source); ok {
		return re.(*regexp.Regexp), nil
	}

	re, err := regexp.Compile(source)
	if err != nil {
		return nil, err
	}

	actual, _ := compiled.LoadOrStore(source, re)

	return actual.(*regexp.Regexp), nil
}
