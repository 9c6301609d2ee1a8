// Package transport attaches the SDK to an agentmux runtime process, either
// over the process's own stdio pipes or over a TCP socket. Socket attachment
// to a spawned process waits for the runtime to announce its listening port
// on stdout before dialing. Externally managed runtimes are dialed directly
// and their processes are never touched.
package transport

import (
	"context"
	"io"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/agentmux/agentmux/internal/logging"
)

// DialTimeout bounds the TCP connect to an announced or configured port.
const DialTimeout = 10 * time.Second

// Handle is an attached transport: the byte stream carrying the RPC traffic
// plus ownership of any process spawned to provide it.
type Handle interface {
	io.ReadWriteCloser

	// Owned reports whether this handle spawned the runtime process.
	Owned() bool
	// Terminate stops an owned process gracefully: signal, wait up to
	// grace, then kill. Releasing twice, or a handle that owns nothing,
	// is a no-op.
	Terminate(grace time.Duration)
	// Kill force-kills an owned process immediately.
	Kill()
}

// Spawn describes how to launch the runtime binary.
type Spawn struct {
	// Bin is the runtime executable.
	Bin string
	// Args are the full command-line arguments.
	Args []string
	// Dir is the working directory; empty means inherit.
	Dir string
	// Env is the child environment; nil means inherit.
	Env []string
}

// command builds the child process. The process is deliberately not bound
// to any context: it outlives the attach call and is released through the
// handle's Terminate/Kill.
func (s Spawn) command() *exec.Cmd {
	cmd := exec.Command(s.Bin, s.Args...)
	cmd.Dir = s.Dir
	if s.Env != nil {
		cmd.Env = s.Env
	}
	return cmd
}

// proc wraps process ownership shared by the stdio and socket handles.
type proc struct {
	mu  sync.Mutex
	cmd *exec.Cmd
}

func (p *proc) Owned() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd != nil
}

func (p *proc) take() *exec.Cmd {
	p.mu.Lock()
	defer p.mu.Unlock()
	cmd := p.cmd
	p.cmd = nil
	return cmd
}

// Terminate reaps through cmd.Wait so the Cmd releases its pipes and wait
// state; Process.Wait would leave those dangling.
func (p *proc) Terminate(grace time.Duration) {
	cmd := p.take()
	if cmd == nil || cmd.Process == nil {
		return
	}
	waited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(waited)
	}()
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		_ = cmd.Process.Kill()
		<-waited
		return
	}
	select {
	case <-waited:
	case <-time.After(grace):
		logging.Debug().Msg("runtime did not exit within grace period, killing")
		_ = cmd.Process.Kill()
		<-waited
	}
}

func (p *proc) Kill() {
	cmd := p.take()
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
	go func() { _ = cmd.Wait() }()
}

// stdioHandle is a pipe attachment to a spawned runtime.
type stdioHandle struct {
	proc
	stdin  io.WriteCloser
	stdout io.ReadCloser

	closeOnce sync.Once
}

func (h *stdioHandle) Read(p []byte) (int, error)  { return h.stdout.Read(p) }
func (h *stdioHandle) Write(p []byte) (int, error) { return h.stdin.Write(p) }

func (h *stdioHandle) Close() error {
	h.closeOnce.Do(func() {
		_ = h.stdin.Close()
		_ = h.stdout.Close()
	})
	return nil
}

// AttachStdio spawns the runtime and attaches over its stdin/stdout pipes.
// The child's stderr is drained at debug level.
func AttachStdio(ctx context.Context, spawn Spawn) (Handle, error) {
	cmd := spawn.command()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	go drainStderr(stderr)

	h := &stdioHandle{stdin: stdin, stdout: stdout}
	h.cmd = cmd
	return h, nil
}

// socketHandle is a TCP attachment, optionally owning a spawned runtime.
type socketHandle struct {
	proc
	conn net.Conn

	closeOnce sync.Once
}

func (h *socketHandle) Read(p []byte) (int, error)  { return h.conn.Read(p) }
func (h *socketHandle) Write(p []byte) (int, error) { return h.conn.Write(p) }

func (h *socketHandle) Close() error {
	h.closeOnce.Do(func() { _ = h.conn.Close() })
	return nil
}

// Dial attaches to an externally managed runtime at ep. The returned handle
// owns no process.
func Dial(ctx context.Context, ep Endpoint) (Handle, error) {
	dialer := net.Dialer{Timeout: DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", ep.Addr())
	if err != nil {
		return nil, err
	}
	return &socketHandle{conn: conn}, nil
}

func drainStderr(r io.Reader) {
	log := logging.Component("runtime")
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			log.Debug().Msg(string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}
