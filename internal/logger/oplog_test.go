package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOperationLog_RecordsInfoAndAbove(t *testing.T) {
	oplog := NewOperationLog(10)
	logr := Nop().Tee(oplog.Core())

	logr.Debug("hidden")
	logr.With(zap.String("schema", "cadastro")).Info("table scanned", zap.Int64("count", 3))
	logr.Error("table failed", zap.Error(errors.New("boom")))

	entries := oplog.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "INFO", entries[0].Level)
	assert.Equal(t, "table scanned", entries[0].Message)
	assert.Equal(t, "cadastro", entries[0].Fields["schema"])
	assert.EqualValues(t, 3, entries[0].Fields["count"])
	assert.Equal(t, "boom", entries[1].Fields["error"])
}

func TestOperationLog_DropsOldestBeyondLimit(t *testing.T) {
	oplog := NewOperationLog(2)
	logr := Nop().Tee(oplog.Core())

	logr.Info("one")
	logr.Info("two")
	logr.Info("three")

	entries := oplog.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "two", entries[0].Message)
	assert.Equal(t, "three", entries[1].Message)
}
