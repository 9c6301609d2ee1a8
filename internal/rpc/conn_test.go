package rpc

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// connPair wires two Conns together over an in-memory pipe. The protocol is
// symmetric, so the "peer" side doubles as a fake remote runtime.
func connPair(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	clientSide, peerSide := net.Pipe()
	client := NewConn(clientSide)
	peer := NewConn(peerSide)
	t.Cleanup(func() {
		_ = client.Close()
		_ = peer.Close()
	})
	return client, peer
}

func TestConnRequestResponse(t *testing.T) {
	client, peer := connPair(t)

	peer.SetRequestHandler("echo", func(ctx context.Context, params map[string]any) (any, *RemoteError) {
		return map[string]any{"echoed": params["message"]}, nil
	})
	peer.Start()
	client.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	raw, err := client.Request(ctx, "echo", map[string]any{"message": "hello"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"echoed":"hello"}`, string(raw))
}

func TestConnConcurrentRequests(t *testing.T) {
	client, peer := connPair(t)

	peer.SetRequestHandler("echo", func(ctx context.Context, params map[string]any) (any, *RemoteError) {
		return map[string]any{"n": params["n"]}, nil
	})
	peer.Start()
	client.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n float64) {
			defer wg.Done()
			raw, err := client.Request(ctx, "echo", map[string]any{"n": n})
			assert.NoError(t, err)
			assert.Contains(t, string(raw), `"n"`)
		}(float64(i))
	}
	wg.Wait()
}

func TestConnRemoteError(t *testing.T) {
	client, peer := connPair(t)

	peer.SetRequestHandler("fail", func(ctx context.Context, params map[string]any) (any, *RemoteError) {
		return nil, &RemoteError{Code: -32000, Message: "boom"}
	})
	peer.Start()
	client.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Request(ctx, "fail", map[string]any{})
	require.Error(t, err)

	var rerr *RemoteError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, -32000, rerr.Code)
	assert.Equal(t, "boom", rerr.Message)
}

func TestConnMethodNotFound(t *testing.T) {
	client, peer := connPair(t)
	peer.Start()
	client.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Request(ctx, "no.such.method", map[string]any{})
	require.Error(t, err)

	var rerr *RemoteError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, CodeMethodNotFound, rerr.Code)
}

func TestConnHandlerPanicBecomesInternalError(t *testing.T) {
	client, peer := connPair(t)

	peer.SetRequestHandler("explode", func(ctx context.Context, params map[string]any) (any, *RemoteError) {
		panic("kaboom")
	})
	peer.Start()
	client.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Request(ctx, "explode", map[string]any{})
	require.Error(t, err)

	var rerr *RemoteError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, CodeInternal, rerr.Code)
}

func TestConnCloseFailsPending(t *testing.T) {
	client, peer := connPair(t)

	block := make(chan struct{})
	peer.SetRequestHandler("hang", func(ctx context.Context, params map[string]any) (any, *RemoteError) {
		<-block
		return map[string]any{}, nil
	})
	peer.Start()
	client.Start()
	defer close(block)

	errs := make(chan error, 1)
	go func() {
		_, err := client.Request(context.Background(), "hang", map[string]any{})
		errs <- err
	}()

	// Let the request reach the peer before closing.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, client.Close())

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrConnClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("pending request not failed by Close")
	}
}

func TestConnRequestAfterClose(t *testing.T) {
	client, _ := connPair(t)
	client.Start()
	require.NoError(t, client.Close())

	_, err := client.Request(context.Background(), "ping", map[string]any{})
	assert.ErrorIs(t, err, ErrConnClosed)
}

func TestConnCloseIdempotent(t *testing.T) {
	client, _ := connPair(t)
	client.Start()
	require.NoError(t, client.Close())
	assert.NoError(t, client.Close())
}

func TestConnNotificationOrder(t *testing.T) {
	client, peer := connPair(t)

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	client.SetNotificationHandler(func(method string, params map[string]any) {
		mu.Lock()
		got = append(got, params["seq"].(string))
		n := len(got)
		mu.Unlock()
		if n == 3 {
			close(done)
		}
	})
	peer.Start()
	client.Start()

	for _, seq := range []string{"a", "b", "c"} {
		require.NoError(t, peer.Notify("tick", map[string]any{"seq": seq}))
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("notifications not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

// lostTransport looks like a peer that went away: reads hit EOF immediately
// while writes still succeed, the way a half-closed pipe behaves.
type lostTransport struct{}

func (lostTransport) Read(p []byte) (int, error)  { return 0, io.EOF }
func (lostTransport) Write(p []byte) (int, error) { return len(p), nil }
func (lostTransport) Close() error                { return nil }

func TestConnTransportLossClosesConn(t *testing.T) {
	conn := NewConn(lostTransport{})
	conn.Start()

	// The read loop dies on EOF and must tear the connection down so
	// requests fail instead of waiting for a response that cannot come.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := conn.Request(ctx, "ping", map[string]any{})
	assert.ErrorIs(t, err, ErrConnClosed)

	select {
	case <-conn.done:
	case <-time.After(5 * time.Second):
		t.Fatal("connection not closed after transport loss")
	}
}

func TestConnRequestContextCancel(t *testing.T) {
	client, peer := connPair(t)

	block := make(chan struct{})
	peer.SetRequestHandler("hang", func(ctx context.Context, params map[string]any) (any, *RemoteError) {
		<-block
		return map[string]any{}, nil
	})
	peer.Start()
	client.Start()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := client.Request(ctx, "hang", map[string]any{})
	assert.ErrorIs(t, err, context.Canceled)
}
