package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestSetLevel(t *testing.T) {
	SetLevel("debug")
	assert.Equal(t, zap.DebugLevel, Level())

	SetLevel("release")
	assert.Equal(t, zap.InfoLevel, Level())
}

func TestLogUsableBeforeInit(t *testing.T) {
	assert.NotPanics(t, func() {
		Log.Info("no-op logger", zap.String("k", "v"))
	})
}
