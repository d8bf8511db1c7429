package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_Disabled(t *testing.T) {
	require.NoError(t, Init(Config{Enabled: false}))
	require.NoError(t, Init(Config{Enabled: true, ExporterType: "none"}))
	assert.NoError(t, Shutdown(context.Background()))
}

func TestInit_UnknownExporter(t *testing.T) {
	err := Init(Config{Enabled: true, ExporterType: "carrier-pigeon"})
	assert.ErrorContains(t, err, "unknown exporter type")
}

func TestStartSpan(t *testing.T) {
	tests := []struct {
		name     string
		spanName string
		data     map[string]any
	}{
		{name: "nil data", spanName: "container.init", data: nil},
		{name: "empty data", spanName: "container.start", data: map[string]any{}},
		{
			name:     "mixed data types",
			spanName: "container.shutdown",
			data: map[string]any{
				"container": "main",
				"agents":    3,
				"t_ms":      int64(1500),
				"speed":     2.5,
				"discrete":  true,
				"ids":       []string{"a", "b"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, span := StartSpan(context.Background(), tt.spanName, tt.data)
			require.NotNil(t, span)
			assert.NotNil(t, ctx)
			assert.Equal(t, tt.spanName, span.Name())
			assert.Equal(t, tt.data, span.Data())
			assert.Equal(t, ctx, span.Context())
			assert.False(t, span.IsEnded())

			span.SetAttribute("extra", 1)
			span.SetError(errors.New("boom"))
			span.End()
			assert.True(t, span.IsEnded())

			span.End()
			assert.True(t, span.IsEnded())
		})
	}
}

func TestSpan_ZeroValue(t *testing.T) {
	var s Span
	s.SetAttribute("k", "v")
	s.SetError(errors.New("x"))
	s.End()
	assert.False(t, s.IsEnded())
}

func TestParseHeaders(t *testing.T) {
	assert.Nil(t, parseHeaders(""))
	assert.Equal(t,
		map[string]string{"Authorization": "Bearer x", "X-Team": "sim"},
		parseHeaders("Authorization=Bearer x, X-Team=sim,broken"),
	)
}

func TestConvertToAttribute(t *testing.T) {
	assert.Equal(t, "s", convertToAttribute("k", "s").Value.AsString())
	assert.Equal(t, int64(3), convertToAttribute("k", 3).Value.AsInt64())
	assert.Equal(t, int64(4), convertToAttribute("k", int64(4)).Value.AsInt64())
	assert.Equal(t, 1.5, convertToAttribute("k", 1.5).Value.AsFloat64())
	assert.True(t, convertToAttribute("k", true).Value.AsBool())
	assert.Equal(t, "[a]", convertToAttribute("k", []string{"a"}).Value.AsString())
}
