package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tech-arch1tect/authkit/config"
)

func TestNewService(t *testing.T) {
	svc, err := NewService(config.LogConfig{Level: "debug", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	assert.NotNil(t, svc.Logger())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("info"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("garbage"))
}

func TestNilReceiverIsSafe(t *testing.T) {
	var svc *Service

	assert.NotPanics(t, func() {
		svc.Debug("debug", zap.String("k", "v"))
		svc.Info("info")
		svc.Warn("warn")
		svc.Error("error")
		svc.Infof("formatted %d", 1)
		svc.Sync()
	})
	assert.Nil(t, svc.Logger())
}
