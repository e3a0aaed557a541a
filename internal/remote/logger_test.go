package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRestyLoggerWritesToZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := restyLogger{zap.New(core).Sugar()}

	l.Warnf("retrying request %d\n", 2)
	l.Errorf("%v", "dial tcp: refused")
	l.Debugf("done")

	entries := logs.All()
	if assert.Len(t, entries, 3) {
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
		assert.Equal(t, "retrying request 2", entries[0].Message)
		assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
		assert.Equal(t, "dial tcp: refused", entries[1].Message)
		assert.Equal(t, zapcore.DebugLevel, entries[2].Level)
	}
}
