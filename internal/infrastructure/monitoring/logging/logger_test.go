package logging

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

func newTestLogger(t *testing.T, level zapcore.Level) (Logger, *zaptest.Buffer) {
	t.Helper()
	buf := &zaptest.Buffer{}
	encCfg := zapcore.EncoderConfig{MessageKey: "msg", LevelKey: "level", NameKey: "logger", EncodeLevel: zapcore.LowercaseLevelEncoder}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), buf, level)
	return NewLoggerFromCore(core), buf
}

func TestNewLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "console", ""} {
		l, err := NewLogger(LogConfig{Level: LevelInfo, Format: format})
		require.NoError(t, err, format)
		assert.NotNil(t, l)
	}
}

func TestNewLogger_EmptyOutputPaths(t *testing.T) {
	l, err := NewLogger(LogConfig{OutputPaths: []string{}})
	assert.Error(t, err)
	assert.Nil(t, l)
}

func TestNewLoggerWithLevel_Retunes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kgeval.log")
	level := zap.NewAtomicLevelAt(zapcore.WarnLevel)
	l, err := NewLoggerWithLevel(LogConfig{Level: LevelDebug, Format: "json", OutputPaths: []string{path}}, level)
	require.NoError(t, err)

	l.Info("hidden")
	level.SetLevel(zapcore.InfoLevel)
	l.Info("shown")
	require.NoError(t, l.Sync())

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "hidden")
	assert.Contains(t, string(body), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
}

func TestZapLogger_FieldsAreEncoded(t *testing.T) {
	l, buf := newTestLogger(t, zapcore.DebugLevel)

	l.Info("relation scored",
		String("relation", "gender"),
		Int("best_margin", 7),
		Float64("accuracy", 0.875),
		Bool("skipped", false),
		Duration("elapsed", 2*time.Second),
		Strings("skipped_relations", []string{"a", "b"}),
		Err(errors.New("boom")),
	)

	out := buf.String()
	assert.Contains(t, out, `"msg":"relation scored"`)
	assert.Contains(t, out, `"relation":"gender"`)
	assert.Contains(t, out, `"best_margin":7`)
	assert.Contains(t, out, `"accuracy":0.875`)
	assert.Contains(t, out, `"skipped_relations":["a","b"]`)
	assert.Contains(t, out, `"error":"boom"`)
}

func TestZapLogger_LevelFiltering(t *testing.T) {
	l, buf := newTestLogger(t, zapcore.WarnLevel)

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")
	l.Error("shown too")

	lines := buf.Lines()
	require.Len(t, lines, 2)
	assert.True(t, strings.Contains(lines[0], `"level":"warn"`))
}

func TestZapLogger_WithAndNamed(t *testing.T) {
	l, buf := newTestLogger(t, zapcore.DebugLevel)

	child := l.Named("score").With(String("run_id", "r-1"))
	child.Info("batch done")

	out := buf.String()
	assert.Contains(t, out, `"logger":"score"`)
	assert.Contains(t, out, `"run_id":"r-1"`)
	assert.NoError(t, l.Sync())
}

func TestErr_Nil(t *testing.T) {
	f := Err(nil)
	assert.Equal(t, "error", f.Key)
	assert.Equal(t, "<nil>", f.Value)
}

func TestDefault_SetDefault(t *testing.T) {
	original := Default()
	t.Cleanup(func() { SetDefault(original) })

	l, _ := newTestLogger(t, zapcore.InfoLevel)
	SetDefault(l)
	assert.Same(t, l, Default())

	SetDefault(nil)
	assert.Same(t, l, Default())
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	l.Info("ignored", String("k", "v"))
	assert.NotNil(t, l.With(String("a", "b")))
	assert.NotNil(t, l.Named("x"))
	assert.NoError(t, l.Sync())
}
