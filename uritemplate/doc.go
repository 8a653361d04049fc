// Package uritemplate compiles URI path templates into anchored regular
// expressions and matches request paths against them.
//
// A template is made of literal text and placeholders enclosed in curly
// braces. A placeholder is either a bare name or a name followed by a colon
// and a regular expression fragment:
//
//	/fruit/{name}
//	/fruit/{version : v[12]}
//	/articles/{id:int}
//
// Leading and trailing slashes of the template are ignored. Literal text is
// quoted so that regex metacharacters match themselves. A bare placeholder
// uses DefaultFragment, which matches one or more characters other than a
// slash, non-greedily.
//
// Every compiled pattern also matches paths that extend the template with a
// slash and further segments, so a pattern can serve both its own route and
// as a prefix for nested routes:
//
//	p, _ := uritemplate.Compile("/fruit/{name}")
//	m := p.Match("/fruit/orange")      // m.Matched, m.Full, m.Params["name"] == "orange"
//	m = p.Match("/fruit/orange/seeds") // m.Matched, !m.Full
//
// # Pattern Macros
//
// Instead of writing a full regex fragment, a placeholder may name a macro:
//
//	uuid     - RFC 4122 UUID (e.g. 550e8400-e29b-41d4-a716-446655440000)
//	int      - unsigned integer (e.g. 42)
//	float    - decimal number (e.g. 3.14, 42, .5)
//	slug     - URL-safe slug (e.g. my-post-title)
//	alpha    - alphabetic characters (e.g. hello)
//	alphanum - alphanumeric characters (e.g. abc123)
//	date     - ISO 8601 date (e.g. 2024-01-15)
//	hex      - hexadecimal string (e.g. deadBEEF)
//	domain   - domain name per RFC 1123 (e.g. example.com)
//
// If the fragment does not name a known macro it is used as a raw regular
// expression.
//
// # Specificity
//
// Patterns expose the metadata a router needs to rank competing matches:
// the compiled pattern length, the number of named groups and the number of
// non-default groups (placeholders with an explicit fragment).
//
// Matching is case-sensitive and never decodes percent-encoded input.
package uritemplate
