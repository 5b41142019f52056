package leadbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	var l Logger = NewZapLogger(zap.New(core))

	l.Debugf("d %d", 1)
	l.Infof("i %d", 2)
	l.Warnf("w %d", 3)
	l.Errorf("e %d", 4)
	l.Info("plain")

	entries := logs.All()
	assert.Len(t, entries, 5)
	assert.Equal(t, "d 1", entries[0].Message)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "plain", entries[4].Message)
}

func TestNewZapLogger_Nil(t *testing.T) {
	assert.NotPanics(t, func() { NewZapLogger(nil).Infof("ignored") })
}

func TestNoopLogger(t *testing.T) {
	var l Logger = &NoopLogger{}
	assert.NotPanics(t, func() {
		l.Debugf("x")
		l.Infof("x")
		l.Warnf("x")
		l.Errorf("x")
		l.Info("x")
	})
}
