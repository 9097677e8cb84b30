package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerWritesGCPSeverity(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Component: "test", Level: "warn", Output: &buf})
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", zap.String("tenant_id", "t-1"))
	require.NoError(t, logger.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	require.Equal(t, "WARNING", entry["severity"])
	require.Equal(t, "kept", entry["message"])
	require.Equal(t, "test", entry["component"])
	require.Equal(t, "t-1", entry["tenant_id"])
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(Config{Level: "loud"})
	require.Error(t, err)
}

func TestWithEnrichesContextLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := WithLogger(context.Background(), zap.New(core))

	ctx = With(ctx, zap.String("tenant_id", "t-1"))
	logger, ok := FromContext(ctx)
	require.True(t, ok)
	logger.Info("hello")

	require.Equal(t, 1, logs.FilterField(zap.String("tenant_id", "t-1")).Len())

	bare := With(context.Background(), zap.String("k", "v"))
	_, ok = FromContext(bare)
	require.False(t, ok)
}

func TestRequestLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	h := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := FromContext(r.Context())
		require.True(t, ok)
		if r.URL.Path == "/boom" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/denied", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}
