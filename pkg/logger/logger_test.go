package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLevels(t *testing.T) {
	tests := []struct {
		level string
		want  logrus.Level
	}{
		{"", logrus.InfoLevel},
		{"debug", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
	}

	for _, tt := range tests {
		require.NoError(t, Init(tt.level, "text"))
		assert.Equal(t, tt.want, Get().GetLevel(), tt.level)
	}

	assert.Error(t, Init("verbose", "text"))
}

func TestWithComponentJSON(t *testing.T) {
	require.NoError(t, Init("info", "json"))
	var buf bytes.Buffer
	SetOutput(&buf)

	WithComponent("pool").Info("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "pool", entry["component"])
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "info", entry["level"])
}
