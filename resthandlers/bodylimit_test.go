package resthandlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBodyLimitMiddleware(t *testing.T) {
	t.Run("invalid size", func(t *testing.T) {
		_, err := BodyLimitMiddleware(BodyLimitConfig{})
		assert.ErrorIs(t, err, ErrInvalidMaxSize)
	})

	mw, err := BodyLimitMiddleware(BodyLimitConfig{MaxBytes: 10})
	require.NoError(t, err)

	tests := []struct {
		name   string
		length string
		status int
	}{
		{name: "no length", status: http.StatusOK},
		{name: "within limit", length: "10", status: http.StatusOK},
		{name: "over limit", length: "11", status: http.StatusRequestEntityTooLarge},
		{name: "malformed", length: "ten", status: http.StatusBadRequest},
		{name: "negative", length: "-1", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.length != "" {
				header.Set("Content-Length", tt.length)
			}

			res := serve(t, ok, header, mw)
			assert.Equal(t, tt.status, res.status)
		})
	}
}
