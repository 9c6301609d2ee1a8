package agentmux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestResolveOptionsDefaults(t *testing.T) {
	r, err := resolveOptions(nil)
	require.NoError(t, err)

	assert.Equal(t, attachStdio, r.mode)
	assert.Equal(t, defaultBin, r.binPath)
	assert.Equal(t, "info", r.logLevel)
	assert.True(t, r.autoStart)
	assert.True(t, r.autoLogin)
}

func TestResolveOptionsBinFromEnv(t *testing.T) {
	t.Setenv(EnvBin, "/opt/agentmux/bin/agentmux")

	r, err := resolveOptions(&Options{})
	require.NoError(t, err)
	assert.Equal(t, "/opt/agentmux/bin/agentmux", r.binPath)

	// An explicit path wins over the environment.
	r, err = resolveOptions(&Options{BinPath: "/usr/local/bin/agentmux"})
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/bin/agentmux", r.binPath)
}

func TestResolveOptionsConflicts(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"url and bin", Options{URL: "localhost:8923", BinPath: "/bin/agentmux"}},
		{"url and port", Options{URL: "localhost:8923", Port: 9000}},
		{"url and stdio", Options{URL: "localhost:8923", UseStdio: boolPtr(true)}},
		{"url and token", Options{URL: "localhost:8923", Token: "tok"}},
		{"url and logged-in user", Options{URL: "localhost:8923", UseLoggedInUser: boolPtr(true)}},
		{"stdio and port", Options{UseStdio: boolPtr(true), Port: 9000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolveOptions(&tt.opts)
			assert.ErrorIs(t, err, ErrOptionConflict)
		})
	}
}

func TestResolveOptionsExternalURL(t *testing.T) {
	r, err := resolveOptions(&Options{URL: "http://localhost:8923"})
	require.NoError(t, err)
	assert.Equal(t, attachExternal, r.mode)
	assert.Equal(t, "localhost:8923", r.endpoint.Addr())
}

func TestResolveOptionsBadURL(t *testing.T) {
	_, err := resolveOptions(&Options{URL: "not a url"})
	assert.Error(t, err)
}

func TestResolveOptionsSocketMode(t *testing.T) {
	r, err := resolveOptions(&Options{Port: 9000})
	require.NoError(t, err)
	assert.Equal(t, attachSocket, r.mode)
	assert.Equal(t, 9000, r.port)

	// UseStdio=false without a port means "pick a free port".
	r, err = resolveOptions(&Options{UseStdio: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, attachSocket, r.mode)
	assert.Equal(t, 0, r.port)
}

func TestResolveOptionsPortRange(t *testing.T) {
	_, err := resolveOptions(&Options{Port: -1})
	assert.ErrorIs(t, err, ErrOptionConflict)

	_, err = resolveOptions(&Options{Port: 65536})
	assert.ErrorIs(t, err, ErrOptionConflict)

	_, err = resolveOptions(&Options{Port: 65535})
	assert.NoError(t, err)
}

func TestResolveOptionsTokenDisablesAutoLogin(t *testing.T) {
	r, err := resolveOptions(&Options{Token: "tok"})
	require.NoError(t, err)
	assert.False(t, r.autoLogin)

	r, err = resolveOptions(&Options{Token: "tok", UseLoggedInUser: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, r.autoLogin)
}

func TestSpawnArgs(t *testing.T) {
	r, err := resolveOptions(&Options{LogLevel: "debug"})
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"--headless", "--no-auto-update", "--log-level", "debug", "--stdio"},
		r.spawnArgs())

	r, err = resolveOptions(&Options{Port: 9000, Token: "tok"})
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"--headless", "--no-auto-update", "--log-level", "info",
			"--port", "9000", "--auth-token-env", envAuthToken, "--no-auto-login"},
		r.spawnArgs())
}

func TestSpawnEnvInjectsToken(t *testing.T) {
	r, err := resolveOptions(&Options{Token: "secret", Env: []string{"A=1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"A=1", envAuthToken + "=secret"}, r.spawnEnv())

	r, err = resolveOptions(&Options{Env: []string{"A=1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"A=1"}, r.spawnEnv())
}

func TestNewRejectsConflicts(t *testing.T) {
	_, err := New(&Options{URL: "localhost:1", Token: "tok"})
	assert.ErrorIs(t, err, ErrOptionConflict)

	c, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, StateDisconnected, c.State())
}
