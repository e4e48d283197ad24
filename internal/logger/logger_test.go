package logger

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	Setup(Options{Level: level, Out: &buf})
	t.Cleanup(func() { Setup(Options{Level: "info"}) })
	return &buf
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	return line
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" WARNING "))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestWithComponent(t *testing.T) {
	buf := capture(t, "debug")
	WithComponent("capture").Debug().Int("frames", 3).Msg("hello")

	line := decode(t, buf)
	assert.Equal(t, "capture", line["component"])
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, float64(3), line["frames"])
}

func TestWithSessionAndJob(t *testing.T) {
	buf := capture(t, "info")
	WithSession("recorder", "video_20260101_120000").Info().Msg("Recording started")
	line := decode(t, buf)
	assert.Equal(t, "recorder", line["component"])
	assert.Equal(t, "video_20260101_120000", line["session"])

	buf.Reset()
	WithJob("extract", "job-1", "video_20260101_120000").Info().Msg("done")
	line = decode(t, buf)
	assert.Equal(t, "job-1", line["job"])
	assert.Equal(t, "video_20260101_120000", line["session"])
}

func TestDurationsInMilliseconds(t *testing.T) {
	buf := capture(t, "info")
	WithComponent("capture").Info().Dur("sleep", 1500*time.Microsecond).Msg("paced")
	assert.Equal(t, 1.5, decode(t, buf)["sleep"])
}

func TestSetup_FiltersBelowLevel(t *testing.T) {
	buf := capture(t, "warn")
	WithComponent("capture").Info().Msg("dropped")
	assert.Zero(t, buf.Len())
}
