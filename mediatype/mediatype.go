package mediatype

import (
	"errors"
	"fmt"
	"mime"
	"sort"
	"strconv"
	"strings"
)

// Wildcard is the media type component that matches anything.
const Wildcard = "*"

// ErrInvalidMediaType is returned when a media type string cannot be parsed.
var ErrInvalidMediaType = errors.New("mediatype: invalid media type")

var (
	// Any is the "*/*" media type.
	Any = MediaType{Type: Wildcard, Subtype: Wildcard}

	// OctetStream is the type selected when only wildcards were negotiated.
	OctetStream = MediaType{Type: "application", Subtype: "octet-stream"}
)

// MediaType is a parsed media type such as "text/html;charset=utf-8".
// Type, Subtype and parameter names are lowercase.
type MediaType struct {
	Type    string
	Subtype string
	Params  map[string]string
}

// Parse parses a single media type. A lone "*" is read as "*/*".
// Parameters that cannot be parsed are dropped rather than failing the
// whole value, matching how browsers send Accept headers.
func Parse(s string) (MediaType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return MediaType{}, fmt.Errorf("%w: empty value", ErrInvalidMediaType)
	}

	full, params, err := mime.ParseMediaType(s)
	if err != nil && !errors.Is(err, mime.ErrInvalidMediaParameter) {
		return MediaType{}, fmt.Errorf("%w: %q: %w", ErrInvalidMediaType, s, err)
	}

	if full == Wildcard {
		full = Wildcard + "/" + Wildcard
	}

	typ, sub, ok := strings.Cut(full, "/")
	if !ok || typ == "" || sub == "" {
		return MediaType{}, fmt.Errorf("%w: %q has no subtype", ErrInvalidMediaType, s)
	}

	if len(params) == 0 {
		params = nil
	}

	return MediaType{Type: typ, Subtype: sub, Params: params}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) MediaType {
	mt, err := Parse(s)
	if err != nil {
		panic(err)
	}

	return mt
}

// ParseList parses a comma separated list of media types such as an
// Accept header value. Empty entries are skipped. An empty header yields
// a single "*/*" entry.
func ParseList(header string) ([]MediaType, error) {
	var out []MediaType

	for _, part := range strings.Split(header, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}

		mt, err := Parse(part)
		if err != nil {
			return nil, err
		}
		out = append(out, mt)
	}

	if len(out) == 0 {
		out = append(out, Any)
	}

	return out, nil
}

// ParseAll parses each string as a media type.
func ParseAll(values []string) ([]MediaType, error) {
	out := make([]MediaType, 0, len(values))
	for _, v := range values {
		mt, err := Parse(v)
		if err != nil {
			return nil, err
		}
		out = append(out, mt)
	}

	return out, nil
}

// IsWildcardType reports whether the type is "*".
func (m MediaType) IsWildcardType() bool {
	return m.Type == Wildcard
}

// IsWildcardSubtype reports whether the subtype is "*".
func (m MediaType) IsWildcardSubtype() bool {
	return m.Subtype == Wildcard
}

// IsConcrete reports whether neither type nor subtype is a wildcard.
func (m MediaType) IsConcrete() bool {
	return !m.IsWildcardType() && !m.IsWildcardSubtype()
}

// Q returns the client quality value, 1.0 when absent or malformed.
func (m MediaType) Q() float64 {
	return m.weight("q")
}

// QS returns the server quality of source, 1.0 when absent or malformed.
func (m MediaType) QS() float64 {
	return m.weight("qs")
}

// Charset returns the charset parameter, if any.
func (m MediaType) Charset() string {
	return m.Params["charset"]
}

func (m MediaType) weight(key string) float64 {
	v, ok := m.Params[key]
	if !ok {
		return 1.0
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f < 0 || f > 1 {
		return 1.0
	}

	return f
}

// IsCompatible reports whether a and b can describe the same content: the
// types are equal or either is a wildcard, and likewise for the subtypes.
func IsCompatible(a, b MediaType) bool {
	if a.Type != b.Type && !a.IsWildcardType() && !b.IsWildcardType() {
		return false
	}

	return a.Subtype == b.Subtype || a.IsWildcardSubtype() || b.IsWildcardSubtype()
}

// Essence returns "type/subtype" without parameters.
func (m MediaType) Essence() string {
	return m.Type + "/" + m.Subtype
}

// String renders the media type with its parameters, sorted by name.
func (m MediaType) String() string {
	if len(m.Params) == 0 {
		return m.Essence()
	}

	if s := mime.FormatMediaType(m.Essence(), m.Params); s != "" {
		return s
	}

	// FormatMediaType refuses values it cannot quote; render them raw.
	keys := make([]string, 0, len(m.Params))
	for k := range m.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(m.Essence())
	for _, k := range keys {
		b.WriteString(";" + k + "=" + m.Params[k])
	}

	return b.String()
}
