// Package mediatype parses HTTP media types and negotiates a response
// content type from a client's Accept header and the types a resource
// produces.
//
// Negotiation follows RFC 9110 Section 12.5.1 with the server-side quality
// of source ("qs") parameter used by JAX-RS style frameworks:
//
//	requested, _ := mediatype.ParseList("text/*;q=0.5")
//	produced := []mediatype.MediaType{
//	    mediatype.MustParse("text/html;qs=0.2"),
//	    mediatype.MustParse("text/plain;qs=0.9"),
//	}
//	mt, err := mediatype.Select(requested, produced) // text/plain
//
// Every compatible requested/produced pair is scored by q*qs. Ties are
// broken by the wildcard distance: a pair where both sides name the same
// concrete type beats one that only matched through a wildcard.
package mediatype
