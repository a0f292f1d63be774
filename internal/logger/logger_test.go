package logger_test

import (
	"bytes"
	"testing"

	"codeberg.org/mutker/hbsc/internal/errors"
	"codeberg.org/mutker/hbsc/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logger.LogLevel
	}{
		{"debug", logger.DebugLevel},
		{"INFO", logger.InfoLevel},
		{"", logger.WarnLevel},
		{"warning", logger.WarnLevel},
		{"warn", logger.WarnLevel},
		{" error ", logger.ErrorLevel},
		{"fatal", logger.FatalLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := logger.ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := logger.ParseLevel("verbose")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidLogLevel))
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, logger.WarnLevel, true)
	t.Cleanup(func() { logger.SetLogLevel(logger.WarnLevel) })

	logger.Debug().Msg("hidden debug")
	logger.Info().Msg("hidden info")
	logger.Warn().Msg("shown warning")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown warning")
}

func TestComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, logger.DebugLevel, true)
	t.Cleanup(func() { logger.SetLogLevel(logger.WarnLevel) })

	log := logger.Default().With("session")
	log.Debug().Uint64("window", 10).Msg("Session opened")
	log.ErrorWithCode(errors.New().New(errors.ErrTimeout)).Msg("slow")

	out := buf.String()
	assert.Contains(t, out, "component=session")
	assert.Contains(t, out, "window=10")
	assert.Contains(t, out, "Session opened")
	assert.Contains(t, out, "error_code=operation_timeout")
}
