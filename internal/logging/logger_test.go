package logging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/fyrsmithlabs/raglab/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

func decodeLines(t *testing.T, buf *zaptest.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range buf.Lines() {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestNewLogger(t *testing.T) {
	buf := &zaptest.Buffer{}
	logger, err := newLogger(NewDefaultConfig(), buf, nil)
	require.NoError(t, err)

	logger.Info("ready", zap.Int("port", 8001))
	logger.Debug("hidden")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "ready", lines[0]["msg"])
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "raglab", lines[0]["service"])
	assert.EqualValues(t, 8001, lines[0]["port"])
	assert.Contains(t, lines[0], "ts")
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	_, err := NewLogger(cfg, nil)
	assert.Error(t, err)
}

func TestNewLogger_Redaction(t *testing.T) {
	buf := &zaptest.Buffer{}
	logger, err := newLogger(NewDefaultConfig(), buf, nil)
	require.NoError(t, err)

	logger.Info("calling upstream",
		zap.String("api_key", "sk-123"),
		zap.String("detail", "Authorization: Bearer abc.def"),
		zap.Error(errors.New("header api_key=sk-999 rejected")),
		zap.String("model", "gemma3:4b"),
	)
	logger.With(zap.String("token", "t0k3n")).Info("child")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "[REDACTED]", lines[0]["api_key"])
	assert.Equal(t, "[REDACTED:pattern]", lines[0]["detail"])
	assert.Equal(t, "[REDACTED:pattern]", lines[0]["error"])
	assert.Equal(t, "gemma3:4b", lines[0]["model"])
	assert.Equal(t, "[REDACTED]", lines[1]["token"])
	assert.NotContains(t, buf.String(), "sk-123")
	assert.NotContains(t, buf.String(), "t0k3n")
}

func TestNewLogger_ConsoleFormat(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "console"
	buf := &zaptest.Buffer{}
	logger, err := newLogger(cfg, buf, nil)
	require.NoError(t, err)

	logger.Warn("slow upstream")
	require.Len(t, buf.Lines(), 1)
	assert.Contains(t, buf.Lines()[0], "slow upstream")
	assert.Contains(t, buf.Lines()[0], "warn")
}

func TestFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		in      config.LoggingConfig
		level   zapcore.Level
		wantErr bool
	}{
		{name: "defaults", in: config.LoggingConfig{}, level: zapcore.InfoLevel},
		{name: "debug console", in: config.LoggingConfig{Level: "debug", Format: "console"}, level: zapcore.DebugLevel},
		{name: "trace", in: config.LoggingConfig{Level: "trace"}, level: TraceLevel},
		{name: "bad level", in: config.LoggingConfig{Level: "loud"}, wantErr: true},
		{name: "bad format", in: config.LoggingConfig{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := FromConfig(tt.in, "raglab-test", true)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.level, cfg.Level)
			assert.True(t, cfg.OTEL)
			assert.Equal(t, "raglab-test", cfg.Fields["service"])
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Redaction.Patterns = []string{"(unclosed"}
	assert.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Sampling = SamplingConfig{Enabled: true}
	assert.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Fields = map[string]string{"env": ""}
	assert.Error(t, cfg.Validate())
}

func TestLevelFromString(t *testing.T) {
	lvl, err := LevelFromString("trace")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, lvl)

	lvl, err = LevelFromString("WARN")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lvl)

	lvl, err = LevelFromString(" warning ")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lvl)

	lvl, err = LevelFromString("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, lvl)

	_, err = LevelFromString("verbose")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"verbose"`)
}

func TestSampling_ErrorsNeverSampled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sampling = SamplingConfig{Enabled: true, Tick: 60e9, Initial: 1, Thereafter: 0}
	buf := &zaptest.Buffer{}
	logger, err := newLogger(cfg, buf, nil)
	require.NoError(t, err)

	for range 5 {
		logger.Info("repeated")
		logger.Error("failure")
	}

	var infos, errs int
	for _, line := range decodeLines(t, buf) {
		switch line["msg"] {
		case "repeated":
			infos++
		case "failure":
			errs++
		}
	}
	assert.Equal(t, 1, infos)
	assert.Equal(t, 5, errs)
}

func TestContext(t *testing.T) {
	t.Run("request id", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-123")
		assert.Equal(t, "req-123", RequestIDFromContext(ctx))

		tl := NewTestLogger()
		FromContext(WithLogger(ctx, tl.Logger)).Info("handled")
		tl.AssertField(t, "handled", "request.id", "req-123")
	})

	t.Run("invalid request id panics", func(t *testing.T) {
		assert.Panics(t, func() { WithRequestID(context.Background(), "bad id\n") })
		assert.False(t, ValidRequestID(""))
		assert.True(t, ValidRequestID("0b9c3d1e-3c4f-4b7a-9a55-4e0d2c1b8f7e"))
	})

	t.Run("trace fields", func(t *testing.T) {
		sc := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    trace.TraceID{1},
			SpanID:     trace.SpanID{2},
			TraceFlags: trace.FlagsSampled,
		})
		ctx := trace.ContextWithSpanContext(context.Background(), sc)

		m := zapcore.NewMapObjectEncoder()
		for _, f := range ContextFields(ctx) {
			f.AddTo(m)
		}
		assert.Equal(t, sc.TraceID().String(), m.Fields["trace_id"])
		assert.Equal(t, sc.SpanID().String(), m.Fields["span_id"])
		assert.Equal(t, true, m.Fields["trace_sampled"])
	})

	t.Run("no logger", func(t *testing.T) {
		assert.NotNil(t, FromContext(context.Background()))
	})
}

func TestSecret(t *testing.T) {
	tl := NewTestLogger()
	tl.Info("config", Secret("api_key", config.Secret("sk-live")), Secret("other", ""))

	tl.AssertField(t, "config", "api_key", "[REDACTED]")
	tl.AssertField(t, "config", "other", "")
	tl.AssertLogged(t, zapcore.InfoLevel, "config")
}
