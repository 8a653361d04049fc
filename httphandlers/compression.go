package httphandlers

import (
	"compress/flate"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/vitalvas/restmux/mediatype"
)

// DefaultMinLength is the smallest body compressed when
// CompressionConfig.MinLength is zero.
const DefaultMinLength = 1400

var (
	// ErrInvalidCompressionLevel is returned when CompressionConfig.Level
	// is outside the flate range.
	ErrInvalidCompressionLevel = errors.New("compression: invalid compression level")

	// ErrInvalidContentType is returned when a CompressionConfig.ContentTypes
	// entry is not a media type.
	ErrInvalidContentType = errors.New("compression: invalid content type")
)

// DefaultContentTypes are compressed when CompressionConfig.ContentTypes
// is empty. Any "+json" or "+xml" structured suffix is compressed too.
var DefaultContentTypes = []string{
	"text/*",
	"application/json",
	"application/javascript",
	"application/xml",
	"application/x-www-form-urlencoded",
	"application/x-yaml",
	"image/svg+xml",
}

// CompressionConfig configures the Compression middleware behaviour.
type CompressionConfig struct {
	// Level applies to gzip and deflate. Zero means
	// flate.DefaultCompression.
	Level int

	// MinLength is the body size below which responses go out
	// uncompressed. Zero means DefaultMinLength, negative compresses
	// everything.
	MinLength int

	// ContentTypes lists compressible media types. "type/*" matches every
	// subtype. Empty means DefaultContentTypes.
	ContentTypes []string
}

type compressor interface {
	io.WriteCloser
	Flush() error
	Reset(w io.Writer)
}

// CompressionMiddleware returns a wrapper that gzip or deflate encodes
// response bodies for clients that accept it. Gzip wins a tie.
//
// The decision is made once MinLength bytes are buffered, on the first
// flush, or when the handler returns, whichever comes first. A body that
// is still shorter than MinLength at that point, has a Content-Encoding
// already, or has a Content-Type outside ContentTypes is sent as is.
func CompressionMiddleware(cfg CompressionConfig) (func(http.Handler) http.Handler, error) {
	level := cfg.Level
	if level == 0 {
		level = flate.DefaultCompression
	}

	if level < flate.HuffmanOnly || level > flate.BestCompression {
		return nil, ErrInvalidCompressionLevel
	}

	minLength := cfg.MinLength
	switch {
	case minLength == 0:
		minLength = DefaultMinLength
	case minLength < 0:
		minLength = 0
	}

	names := cfg.ContentTypes
	if len(names) == 0 {
		names = DefaultContentTypes
	}

	types := make([]mediatype.MediaType, 0, len(names))
	for _, name := range names {
		mt, err := mediatype.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidContentType, name)
		}
		types = append(types, mt)
	}

	pools := map[string]*sync.Pool{
		"gzip": {New: func() any {
			w, _ := gzip.NewWriterLevel(io.Discard, level)
			return w
		}},
		"deflate": {New: func() any {
			w, _ := flate.NewWriter(io.Discard, level)
			return w
		}},
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			encoding := selectEncoding(r.Header.Values("Accept-Encoding"))
			if encoding == "" {
				next.ServeHTTP(w, r)
				return
			}

			cw := &compressWriter{
				ResponseWriter: w,
				pool:           pools[encoding],
				encoding:       encoding,
				minLength:      minLength,
				types:          types,
				status:         http.StatusOK,
			}

			defer func() {
				if p := recover(); p != nil {
					cw.release()
					panic(p)
				}

				cw.close()
			}()

			next.ServeHTTP(cw, r)
		})
	}, nil
}

// selectEncoding picks gzip or deflate from Accept-Encoding values, or ""
// when neither is acceptable.
func selectEncoding(values []string) string {
	q := map[string]float64{"gzip": -1, "deflate": -1, "*": -1}

	for _, value := range values {
		for part := range strings.SplitSeq(value, ",") {
			name, params, _ := strings.Cut(part, ";")
			name = strings.ToLower(strings.TrimSpace(name))
			if _, ok := q[name]; !ok {
				continue
			}

			q[name] = 1
			if key, val, ok := strings.Cut(strings.TrimSpace(params), "="); ok && strings.TrimSpace(key) == "q" {
				f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
				if err != nil {
					f = 0
				}
				q[name] = f
			}
		}
	}

	for _, name := range []string{"gzip", "deflate"} {
		if q[name] < 0 {
			q[name] = q["*"]
		}
	}

	switch {
	case q["gzip"] > 0 && q["gzip"] >= q["deflate"]:
		return "gzip"
	case q["deflate"] > 0:
		return "deflate"
	}

	return ""
}

func compressible(contentType string, types []mediatype.MediaType) bool {
	if contentType == "" {
		return false
	}

	mt, err := mediatype.Parse(contentType)
	if err != nil {
		return false
	}

	if strings.HasSuffix(mt.Subtype, "+json") || strings.HasSuffix(mt.Subtype, "+xml") {
		return true
	}

	for _, t := range types {
		if t.Type == mt.Type && (t.Subtype == mt.Subtype || t.IsWildcardSubtype()) {
			return true
		}
	}

	return false
}

// compressWriter holds the status and body until it knows whether to
// compress.
type compressWriter struct {
	http.ResponseWriter
	pool      *sync.Pool
	encoding  string
	minLength int
	types     []mediatype.MediaType

	status      int
	wroteHeader bool
	decided     bool
	writer      compressor
	buf         []byte
}

func (cw *compressWriter) WriteHeader(status int) {
	if cw.wroteHeader {
		return
	}

	cw.status = status
	cw.wroteHeader = true

	if status == http.StatusNoContent || status == http.StatusNotModified {
		_ = cw.decide(false)
	}
}

func (cw *compressWriter) Write(p []byte) (int, error) {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}

	if cw.decided {
		if cw.writer != nil {
			return cw.writer.Write(p)
		}

		return cw.ResponseWriter.Write(p)
	}

	cw.buf = append(cw.buf, p...)
	if len(cw.buf) >= cw.minLength {
		if err := cw.decide(true); err != nil {
			return 0, err
		}
	}

	return len(p), nil
}

// decide commits the header and drains the buffer. allowed false forces
// an uncompressed response.
func (cw *compressWriter) decide(allowed bool) error {
	cw.decided = true

	h := cw.Header()
	if allowed && len(cw.buf) >= cw.minLength && len(cw.buf) > 0 &&
		h.Get("Content-Encoding") == "" && compressible(h.Get("Content-Type"), cw.types) {
		h.Set("Content-Encoding", cw.encoding)
		h.Add("Vary", "Accept-Encoding")
		h.Del("Content-Length")

		cw.writer = cw.pool.Get().(compressor)
		cw.writer.Reset(cw.ResponseWriter)
	}

	cw.ResponseWriter.WriteHeader(cw.status)

	buf := cw.buf
	cw.buf = nil
	if len(buf) == 0 {
		return nil
	}

	var err error
	if cw.writer != nil {
		_, err = cw.writer.Write(buf)
	} else {
		_, err = cw.ResponseWriter.Write(buf)
	}

	return err
}

// FlushError lets http.ResponseController flush through the encoder.
func (cw *compressWriter) FlushError() error {
	if !cw.decided {
		if !cw.wroteHeader {
			cw.WriteHeader(http.StatusOK)
		}
		if err := cw.decide(true); err != nil {
			return err
		}
	}

	if cw.writer != nil {
		if err := cw.writer.Flush(); err != nil {
			return err
		}
	}

	return http.NewResponseController(cw.ResponseWriter).Flush()
}

func (cw *compressWriter) Flush() {
	_ = cw.FlushError()
}

// Unwrap exposes the connection writer to http.ResponseController.
func (cw *compressWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}

func (cw *compressWriter) close() {
	if !cw.decided && cw.wroteHeader {
		_ = cw.decide(true)
	}

	if cw.writer != nil {
		_ = cw.writer.Close()
		cw.release()
	}
}

func (cw *compressWriter) release() {
	if cw.writer == nil {
		return
	}

	cw.writer.Reset(io.Discard)
	cw.pool.Put(cw.writer)
	cw.writer = nil
}
