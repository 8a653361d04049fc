package resthandlers

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerMiddleware(t *testing.T) {
	t.Run("explicit hostname", func(t *testing.T) {
		mw, err := ServerMiddleware(ServerConfig{Hostname: "web-1"})
		require.NoError(t, err)

		res := serve(t, ok, nil, mw)
		assert.Equal(t, "web-1", res.header.Get("X-Server-Hostname"))
	})

	t.Run("first non-empty env wins", func(t *testing.T) {
		t.Setenv("RESTMUX_TEST_EMPTY", "")
		t.Setenv("RESTMUX_TEST_POD", "pod-7")

		mw, err := ServerMiddleware(ServerConfig{HostnameEnv: []string{"RESTMUX_TEST_UNSET", "RESTMUX_TEST_EMPTY", "RESTMUX_TEST_POD"}})
		require.NoError(t, err)

		res := serve(t, ok, nil, mw)
		assert.Equal(t, "pod-7", res.header.Get("X-Server-Hostname"))
	})

	t.Run("falls back to os hostname", func(t *testing.T) {
		want, err := os.Hostname()
		require.NoError(t, err)

		mw, err := ServerMiddleware(ServerConfig{})
		require.NoError(t, err)

		res := serve(t, ok, nil, mw)
		assert.Equal(t, want, res.header.Get("X-Server-Hostname"))
	})
}
