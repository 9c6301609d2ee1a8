package agentmux

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/agentmux/agentmux/internal/transport"
)

// EnvBin names the environment variable that overrides the runtime binary
// path.
const EnvBin = "AGENTMUX_BIN"

// envAuthToken is the variable the spawned runtime reads its token from.
const envAuthToken = "AGENTMUX_SDK_AUTH_TOKEN"

// defaultBin is used when neither Options.BinPath nor EnvBin is set.
const defaultBin = "agentmux"

// ErrOptionConflict is returned by New for mutually exclusive option
// combinations.
var ErrOptionConflict = errors.New("agentmux: conflicting options")

// Options configures a Client. The zero value spawns the runtime from PATH
// and attaches over stdio.
type Options struct {
	// BinPath is the runtime executable. Defaults to $AGENTMUX_BIN, then
	// "agentmux" on PATH. Mutually exclusive with URL.
	BinPath string
	// Dir is the working directory for a spawned runtime.
	Dir string
	// Env is the spawned runtime's environment; nil inherits this process's.
	Env []string
	// LogLevel is passed to the spawned runtime. Defaults to "info".
	LogLevel string

	// URL attaches to an externally managed runtime ("port", "host:port" or
	// "scheme://host:port"). Mutually exclusive with BinPath, Port, UseStdio
	// and credentials; an external runtime manages its own auth.
	URL string
	// Port makes the spawned runtime listen on a fixed TCP port instead of
	// stdio.
	Port int
	// UseStdio selects pipe attachment explicitly. Defaults to true unless
	// Port or URL is set.
	UseStdio *bool

	// AutoStart starts the client on first use. Defaults to true.
	AutoStart *bool

	// Token authenticates the spawned runtime.
	Token string
	// UseLoggedInUser allows the runtime to fall back to its logged-in
	// account. Defaults to true, or false when Token is set.
	UseLoggedInUser *bool

	// Logger overrides the SDK's logger for this client.
	Logger *zerolog.Logger
}

// attachMode selects how the client reaches the runtime.
type attachMode int

const (
	attachStdio attachMode = iota
	attachSocket
	attachExternal
)

// resolved is the validated, defaulted form of Options.
type resolved struct {
	mode      attachMode
	endpoint  transport.Endpoint
	binPath   string
	dir       string
	env       []string
	logLevel  string
	port      int
	autoStart bool
	token     string
	autoLogin bool
}

func resolveOptions(opts *Options) (resolved, error) {
	r := resolved{
		mode:      attachStdio,
		logLevel:  "info",
		autoStart: true,
		autoLogin: true,
	}
	if opts == nil {
		opts = &Options{}
	}

	if opts.URL != "" {
		if opts.UseStdio != nil || opts.BinPath != "" || opts.Port > 0 {
			return r, fmt.Errorf("%w: URL cannot be combined with BinPath, Port or UseStdio", ErrOptionConflict)
		}
		if opts.Token != "" || opts.UseLoggedInUser != nil {
			return r, fmt.Errorf("%w: an external runtime manages its own auth; drop Token/UseLoggedInUser", ErrOptionConflict)
		}
		ep, err := transport.ParseEndpoint(opts.URL)
		if err != nil {
			return r, fmt.Errorf("agentmux: %w", err)
		}
		r.mode = attachExternal
		r.endpoint = ep
	}

	if opts.UseStdio != nil && *opts.UseStdio && opts.Port != 0 {
		return r, fmt.Errorf("%w: UseStdio cannot be combined with Port", ErrOptionConflict)
	}

	if opts.Port != 0 || (opts.UseStdio != nil && !*opts.UseStdio) {
		if opts.Port < 0 || opts.Port > 65535 {
			return r, fmt.Errorf("%w: port %d out of range", ErrOptionConflict, opts.Port)
		}
		if r.mode == attachStdio {
			r.mode = attachSocket
			r.port = opts.Port
		}
	}

	r.binPath = opts.BinPath
	if r.binPath == "" {
		r.binPath = os.Getenv(EnvBin)
	}
	if r.binPath == "" {
		r.binPath = defaultBin
	}

	r.dir = opts.Dir
	r.env = opts.Env
	if r.env == nil {
		r.env = os.Environ()
	}
	if opts.LogLevel != "" {
		r.logLevel = opts.LogLevel
	}
	if opts.AutoStart != nil {
		r.autoStart = *opts.AutoStart
	}

	r.token = opts.Token
	switch {
	case opts.UseLoggedInUser != nil:
		r.autoLogin = *opts.UseLoggedInUser
	case opts.Token != "":
		r.autoLogin = false
	}

	return r, nil
}

// spawnArgs assembles the runtime command line for the resolved options.
func (r resolved) spawnArgs() []string {
	args := []string{"--headless", "--no-auto-update", "--log-level", r.logLevel}
	switch r.mode {
	case attachStdio:
		args = append(args, "--stdio")
	case attachSocket:
		args = append(args, "--port", fmt.Sprintf("%d", r.port))
	}
	if r.token != "" {
		args = append(args, "--auth-token-env", envAuthToken)
	}
	if !r.autoLogin {
		args = append(args, "--no-auto-login")
	}
	return args
}

// spawnEnv is the child environment, with the auth token injected when set.
func (r resolved) spawnEnv() []string {
	if r.token == "" {
		return r.env
	}
	env := make([]string, len(r.env), len(r.env)+1)
	copy(env, r.env)
	return append(env, envAuthToken+"="+r.token)
}
