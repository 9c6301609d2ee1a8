package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Endpoint
		ok    bool
	}{
		{"bare port", "8923", Endpoint{Host: "localhost", Port: 8923}, true},
		{"host and port", "example.com:80", Endpoint{Host: "example.com", Port: 80}, true},
		{"http scheme stripped", "http://localhost:8923", Endpoint{Host: "localhost", Port: 8923}, true},
		{"https scheme stripped", "https://10.0.0.5:443", Endpoint{Host: "10.0.0.5", Port: 443}, true},
		{"other scheme stripped", "tcp://host:1", Endpoint{Host: "host", Port: 1}, true},
		{"port lower bound", "1", Endpoint{Host: "localhost", Port: 1}, true},
		{"port upper bound", "65535", Endpoint{Host: "localhost", Port: 65535}, true},
		{"empty host keeps default", ":9000", Endpoint{Host: "localhost", Port: 9000}, true},
		{"port zero", "0", Endpoint{}, false},
		{"port too large", "65536", Endpoint{}, false},
		{"negative port", "host:-1", Endpoint{}, false},
		{"not a number", "host:abc", Endpoint{}, false},
		{"empty", "", Endpoint{}, false},
		{"path", "localhost:8923/rpc", Endpoint{}, false},
		{"spaces", "not a url", Endpoint{}, false},
		{"missing port", "example.com:", Endpoint{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEndpoint(tt.input)
			if !tt.ok {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrBadEndpoint)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEndpointAddr(t *testing.T) {
	assert.Equal(t, "localhost:8923", Endpoint{Host: "localhost", Port: 8923}.Addr())
	assert.Equal(t, "[::1]:80", Endpoint{Host: "::1", Port: 80}.Addr())
}

func TestPortAnnouncementPattern(t *testing.T) {
	tests := []struct {
		line string
		port string
	}{
		{"Listening on port 8923", "8923"},
		{"listening on port 80", "80"},
		{"[info] LISTENING ON PORT 9000 (pid 42)", "9000"},
		{"server started", ""},
		{"listening on socket /tmp/x", ""},
	}
	for _, tt := range tests {
		m := portAnnouncement.FindStringSubmatch(tt.line)
		if tt.port == "" {
			assert.Nil(t, m, tt.line)
			continue
		}
		require.NotNil(t, m, tt.line)
		assert.Equal(t, tt.port, m[1])
	}
}
