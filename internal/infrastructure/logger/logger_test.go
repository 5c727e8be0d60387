package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"console stdout", &Config{Level: "debug", Format: "console", Output: "stdout"}},
		{"json stderr", &Config{Level: "warn", Format: "json", Output: "stderr"}},
		{"empty output defaults to stdout", &Config{Level: "info", Format: "json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.cfg)
			require.NoError(t, err)
			assert.NotNil(t, log)
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recon.log")

	log, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)
	log.Info("reconciliation finalized", zap.String("reconciliation_id", "r-1"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"reconciliation finalized"`)
	assert.Contains(t, string(data), `"reconciliation_id":"r-1"`)
}

func TestNew_UnwritableFile(t *testing.T) {
	_, err := New(&Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	assert.Error(t, err)
}

func TestNew_WithCoreAndFields(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)

	log, err := New(&Config{Level: "error", Format: "json", Output: "stderr"},
		WithCore(core),
		WithCore(nil),
		WithFields(zap.String("service", "reconciliation")),
	)
	require.NoError(t, err)

	log.Info("auto-match completed")

	entries := recorded.FilterMessage("auto-match completed").All()
	require.Len(t, entries, 1, "extra core receives entries below the primary level")
	assert.Equal(t, "reconciliation", entries[0].ContextMap()["service"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"DEBUG":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"fatal":   zapcore.FatalLevel,
		"bogus":   zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestCreateEncoder(t *testing.T) {
	entry := zapcore.Entry{Level: zapcore.InfoLevel, Message: "hello"}

	jsonBuf, err := createEncoder(&Config{Format: "json"}).EncodeEntry(entry, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(jsonBuf.String(), "{"))

	consoleBuf, err := createEncoder(&Config{Format: "console"}).EncodeEntry(entry, nil)
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(consoleBuf.String(), "{"))
	assert.Contains(t, consoleBuf.String(), "hello")
}

func TestSync(t *testing.T) {
	assert.NoError(t, Sync(zap.NewNop()))
}
