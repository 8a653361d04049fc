package mediatype

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNotAcceptable is returned when no produced type satisfies the request.
var ErrNotAcceptable = errors.New("mediatype: not acceptable")

// NonMatch is the result of combining two incompatible media types.
var NonMatch = Combined{}

// Combined is the outcome of matching one requested type against one
// produced type. Q and QS are kept apart so ties can be told apart.
type Combined struct {
	Type    string
	Subtype string
	Q       float64
	QS      float64
	// D is the number of components where exactly one side was a wildcard.
	D int
	// Charset is the charset the produced type declared, if any.
	Charset string
}

// IsNonMatch reports whether c is the NonMatch sentinel.
func (c Combined) IsNonMatch() bool {
	return c.Type == ""
}

// IsConcrete reports whether neither component is a wildcard.
func (c Combined) IsConcrete() bool {
	return c.Type != Wildcard && c.Subtype != Wildcard
}

// Score returns q*qs.
func (c Combined) Score() float64 {
	return c.Q * c.QS
}

// MediaType returns the combined type with its charset parameter.
func (c Combined) MediaType() MediaType {
	mt := MediaType{Type: c.Type, Subtype: c.Subtype}
	if c.Charset != "" {
		mt.Params = map[string]string{"charset": c.Charset}
	}

	return mt
}

func (c Combined) String() string {
	return fmt.Sprintf("%s/%s;q=%g;qs=%g;d=%d", c.Type, c.Subtype, c.Q, c.QS, c.D)
}

// Combine merges a requested and a produced type. The more specific of each
// component wins. Incompatible pairs yield NonMatch.
func Combine(requested, produced MediaType) Combined {
	if !IsCompatible(requested, produced) {
		return NonMatch
	}

	c := Combined{
		Type:    requested.Type,
		Subtype: requested.Subtype,
		Q:       requested.Q(),
		QS:      produced.QS(),
		Charset: produced.Charset(),
	}

	if requested.IsWildcardType() {
		c.Type = produced.Type
	}
	if requested.IsWildcardSubtype() {
		c.Subtype = produced.Subtype
	}

	if requested.IsWildcardType() != produced.IsWildcardType() {
		c.D++
	}
	if requested.IsWildcardSubtype() != produced.IsWildcardSubtype() {
		c.D++
	}

	return c
}

// Negotiate combines every requested type with every produced type and
// returns the compatible pairs, best first: highest q*qs, then lowest D,
// then the order the client listed its types in. Pairs the client refused
// with q=0 are dropped.
func Negotiate(requested, produced []MediaType) ([]Combined, error) {
	if len(produced) == 0 {
		return nil, fmt.Errorf("%w: nothing is produced", ErrNotAcceptable)
	}

	var out []Combined
	for _, r := range requested {
		if r.Q() == 0 {
			continue
		}

		for _, p := range produced {
			if c := Combine(r, p); !c.IsNonMatch() {
				out = append(out, c)
			}
		}
	}

	if len(out) == 0 {
		return nil, ErrNotAcceptable
	}

	sort.SliceStable(out, func(i, j int) bool {
		si, sj := out[i].Score(), out[j].Score()
		if si != sj {
			return si > sj
		}

		return out[i].D < out[j].D
	})

	return out, nil
}

// Select picks the response content type. The first concrete negotiated
// type wins. When only wildcards survive and one of them is "*/*" or
// "application/*", application/octet-stream is chosen.
func Select(requested, produced []MediaType) (MediaType, error) {
	combined, err := Negotiate(requested, produced)
	if err != nil {
		return MediaType{}, err
	}

	octet := false
	for _, c := range combined {
		if c.IsConcrete() {
			return c.MediaType(), nil
		}

		if c.Subtype == Wildcard && (c.Type == Wildcard || c.Type == OctetStream.Type) {
			octet = true
		}
	}

	if octet {
		return OctetStream, nil
	}

	return MediaType{}, ErrNotAcceptable
}

// SelectContentType parses an Accept header value and calls Select.
func SelectContentType(accept string, produced []MediaType) (MediaType, error) {
	requested, err := ParseList(accept)
	if err != nil {
		return MediaType{}, err
	}

	return Select(requested, produced)
}
