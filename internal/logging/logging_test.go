package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"Error", zerolog.ErrorLevel},
		{"none", zerolog.Disabled},
		{"off", zerolog.Disabled},
		{" info ", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.input), tt.input)
	}
}

func TestInitLevelFilter(t *testing.T) {
	defer Init(Config{Level: zerolog.InfoLevel})

	var buf bytes.Buffer
	Init(Config{Level: zerolog.WarnLevel, Output: &buf})

	Debug().Msg("hidden")
	Warn().Msg("visible")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible")
}

func TestComponent(t *testing.T) {
	defer Init(Config{Level: zerolog.InfoLevel})

	var buf bytes.Buffer
	Init(Config{Level: zerolog.DebugLevel, Output: &buf})

	log := Component("transport")
	log.Debug().Msg("attached")

	assert.Contains(t, buf.String(), `"component":"transport"`)
	assert.Contains(t, buf.String(), "attached")
}
