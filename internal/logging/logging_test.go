package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "", want: slog.LevelInfo},
		{in: "DEBUG", want: slog.LevelDebug},
		{in: " warn ", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "verbose", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_JSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "warn", Format: "json", Output: &buf})
	require.NoError(t, err)

	l.Info("hidden")
	l.Warn("shown", "agent", "ping")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "ping", rec["agent"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{NoColor: true, Output: &buf})
	require.NoError(t, err)

	l.Info("hello", "agent", "pong")
	assert.Contains(t, buf.String(), "hello")
	assert.Contains(t, buf.String(), "agent=pong")
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Config{Format: "xml"})
	assert.Error(t, err)

	_, err = New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestWithClock(t *testing.T) {
	var buf bytes.Buffer
	base, err := New(Config{Format: "json", Output: &buf})
	require.NoError(t, err)

	now := int64(0)
	l := WithClock(base, func() int64 { return now }).With("container", "main")

	now = 1500
	l.Info("tick")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, float64(1500), rec[ClockKey])
	assert.Equal(t, "main", rec["container"])
}
