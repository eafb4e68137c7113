package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/lessongate-backend/pkg/config"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: "debug", Output: buf})

	ctx := log.WithRequestID(context.Background(), "req-123")
	log.Error(ctx, "boom", errors.New("boom"))

	require.Contains(t, buf.String(), `"request_id":"req-123"`)
	require.Contains(t, buf.String(), `"stack"`)
	require.Contains(t, buf.String(), `"error":"boom"`)
}

func TestLoggerWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: "debug", Output: buf, WarnStack: true})
	log.Warn(context.Background(), "warny")
	require.Contains(t, buf.String(), `"stack"`)

	buf.Reset()
	quiet := New(Options{ServiceName: "test", Output: buf})
	quiet.Warn(context.Background(), "warny")
	require.NotContains(t, buf.String(), `"stack"`)
}

func TestWithEventTagsProviderAndEventID(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})

	ctx := log.WithEvent(context.Background(), "stripe", "evt_1")
	log.Info(ctx, "webhook.received")

	require.Contains(t, buf.String(), `"provider":"stripe"`)
	require.Contains(t, buf.String(), `"event_id":"evt_1"`)
}

func TestParseLevelDefaults(t *testing.T) {
	require.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	require.Equal(t, zerolog.InfoLevel, ParseLevel("invalid"))
	require.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
}

func TestNopAndNilDiscard(t *testing.T) {
	Nop().Error(context.Background(), "ignored", errors.New("x"))

	var nilLogger *Logger
	ctx := nilLogger.WithField(context.Background(), "k", "v")
	require.NotNil(t, ctx)
	nilLogger.Info(ctx, "ignored")
	nilLogger.Error(ctx, "ignored", errors.New("x"))
}

func TestWithFieldsRedactsSecrets(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Format: "json", Output: buf})

	ctx := log.WithFields(context.Background(), map[string]any{
		"webhook_signature": "v1,abc",
		"Authorization":     "Bearer xyz",
		"provider":          "clerk",
	})
	log.Info(ctx, "webhook.verify")

	out := buf.String()
	require.NotContains(t, out, "v1,abc")
	require.NotContains(t, out, "Bearer xyz")
	require.Contains(t, out, `"webhook_signature":"[REDACTED]"`)
	require.Contains(t, out, `"provider":"clerk"`)
}

func TestConsoleFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Format: "console", Output: buf})
	log.Info(context.Background(), "hello")
	require.Contains(t, buf.String(), "hello")
	require.NotContains(t, buf.String(), `"message"`)
}

func TestForAppUsesConfig(t *testing.T) {
	log := ForApp("api", config.AppConfig{LogLevel: "warn", LogFormat: "json"})
	require.Equal(t, zerolog.WarnLevel, log.base.GetLevel())
}

func TestUnsetLevelDefaultsToInfo(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})
	require.Equal(t, zerolog.InfoLevel, log.base.GetLevel())

	log.Debug(context.Background(), "hidden")
	require.Empty(t, buf.String())
}
