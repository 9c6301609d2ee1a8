package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/agentmux/agentmux/internal/logging"
)

// StartupTimeout bounds the wait for a spawned runtime to announce its
// listening port.
const StartupTimeout = 10 * time.Second

// ErrStartupTimeout is returned when a spawned runtime never announces a
// listening port.
var ErrStartupTimeout = errors.New("timed out waiting for runtime to announce its port")

var portAnnouncement = regexp.MustCompile(`(?i)listening on port (\d+)`)

// AttachSocket spawns the runtime, waits for it to announce its listening
// port on stdout, and dials it. The announcement races the accept loop in
// the runtime, so the dial retries briefly with exponential backoff.
func AttachSocket(ctx context.Context, spawn Spawn) (Handle, error) {
	cmd := spawn.command()

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

	port, err := awaitPortAnnouncement(ctx, stdout, StartupTimeout)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}
	// Keep draining stdout so the child never blocks on a full pipe.
	go func() { _, _ = io.Copy(io.Discard, stdout) }()

	conn, err := dialWithRetry(ctx, Endpoint{Host: "localhost", Port: port})
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}

	h := &socketHandle{conn: conn}
	h.cmd = cmd
	return h, nil
}

// awaitPortAnnouncement scans r line by line for the port announcement.
func awaitPortAnnouncement(ctx context.Context, r io.Reader, timeout time.Duration) (int, error) {
	type result struct {
		port int
		err  error
	}
	found := make(chan result, 1)

	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := scanner.Text()
			m := portAnnouncement.FindStringSubmatch(line)
			if m == nil {
				logging.Debug().Str("line", line).Msg("runtime startup output")
				continue
			}
			port, err := strconv.Atoi(m[1])
			if err != nil || port <= 0 || port > 65535 {
				found <- result{err: fmt.Errorf("runtime announced unusable port %q", m[1])}
				return
			}
			found <- result{port: port}
			return
		}
		if err := scanner.Err(); err != nil {
			found <- result{err: fmt.Errorf("reading runtime output: %w", err)}
			return
		}
		found <- result{err: fmt.Errorf("runtime exited before announcing a port: %w", ErrStartupTimeout)}
	}()

	select {
	case res := <-found:
		return res.port, res.err
	case <-time.After(timeout):
		return 0, ErrStartupTimeout
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func dialWithRetry(ctx context.Context, ep Endpoint) (net.Conn, error) {
	var conn net.Conn
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxElapsedTime = DialTimeout

	err := backoff.Retry(func() error {
		dialer := net.Dialer{Timeout: DialTimeout}
		c, err := dialer.DialContext(ctx, "tcp", ep.Addr())
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return nil, fmt.Errorf("connecting to runtime at %s: %w", ep.Addr(), err)
	}
	return conn, nil
}
