package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func newGormLogger(t *testing.T, level gormlogger.LogLevel) (*GormLogger, *observer.ObservedLogs) {
	t.Helper()
	core, recorded := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), level), recorded
}

func checkpointQuery() (string, int64) {
	return "SELECT * FROM checkpoints WHERE pairing = $1 ORDER BY committed_at DESC LIMIT 1", 1
}

func TestGormLogger_LogMode(t *testing.T) {
	gormLog, _ := newGormLogger(t, gormlogger.Info)
	derived := gormLog.LogMode(gormlogger.Warn)

	assert.Equal(t, gormlogger.Info, gormLog.logLevel)
	derivedGorm, ok := derived.(*GormLogger)
	require.True(t, ok)
	assert.Equal(t, gormlogger.Warn, derivedGorm.logLevel)
}

func TestGormLogger_Levels(t *testing.T) {
	t.Run("info passes through", func(t *testing.T) {
		gormLog, recorded := newGormLogger(t, gormlogger.Info)
		gormLog.Info(context.Background(), "migrating %s", "checkpoints")

		logs := recorded.All()
		require.Len(t, logs, 1)
		assert.Contains(t, logs[0].Message, "migrating checkpoints")
	})

	t.Run("silent suppresses everything", func(t *testing.T) {
		gormLog, recorded := newGormLogger(t, gormlogger.Silent)
		gormLog.Info(context.Background(), "hidden")
		gormLog.Warn(context.Background(), "hidden")
		gormLog.Error(context.Background(), "hidden")
		gormLog.Trace(context.Background(), time.Now(), checkpointQuery, nil)

		assert.Empty(t, recorded.All())
	})
}

func TestGormLogger_Trace(t *testing.T) {
	t.Run("failed query logs at error", func(t *testing.T) {
		gormLog, recorded := newGormLogger(t, gormlogger.Error)
		gormLog.Trace(context.Background(), time.Now(), checkpointQuery, errors.New("connection reset"))

		logs := recorded.FilterMessage("query failed").All()
		require.Len(t, logs, 1)
		assert.Equal(t, zapcore.ErrorLevel, logs[0].Level)
	})

	t.Run("record not found is not an error", func(t *testing.T) {
		gormLog, recorded := newGormLogger(t, gormlogger.Error)
		gormLog.Trace(context.Background(), time.Now(), checkpointQuery, gormlogger.ErrRecordNotFound)

		assert.Empty(t, recorded.All())
	})

	t.Run("slow query logs at warn", func(t *testing.T) {
		gormLog, recorded := newGormLogger(t, gormlogger.Warn)
		begin := time.Now().Add(-time.Second)
		gormLog.Trace(context.Background(), begin, checkpointQuery, nil)

		logs := recorded.FilterMessage("slow query").All()
		require.Len(t, logs, 1)
		assert.Equal(t, zapcore.WarnLevel, logs[0].Level)
	})

	t.Run("normal query logs at debug", func(t *testing.T) {
		gormLog, recorded := newGormLogger(t, gormlogger.Info)
		gormLog.Trace(context.Background(), time.Now(), checkpointQuery, nil)

		logs := recorded.FilterMessage("query").All()
		require.Len(t, logs, 1)
		assert.Equal(t, zapcore.DebugLevel, logs[0].Level)
	})

	t.Run("carries correlation fields from the context", func(t *testing.T) {
		gormLog, recorded := newGormLogger(t, gormlogger.Info)

		ctx := context.WithValue(context.Background(), RequestIDKey, "req-9")
		ctx = context.WithValue(ctx, PairingKey, "acme-books")
		ctx = context.WithValue(ctx, TicketKey, "tkt-42")
		gormLog.Trace(ctx, time.Now(), checkpointQuery, nil)

		logs := recorded.All()
		require.Len(t, logs, 1)

		fields := make(map[string]string)
		for _, f := range logs[0].Context {
			fields[f.Key] = f.String
		}
		assert.Equal(t, "req-9", fields["request_id"])
		assert.Equal(t, "acme-books", fields["pairing"])
		assert.Equal(t, "tkt-42", fields["ticket"])
	})
}

func TestMapGormLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected gormlogger.LogLevel
	}{
		{"silent", gormlogger.Silent},
		{"error", gormlogger.Error},
		{"warn", gormlogger.Warn},
		{"info", gormlogger.Info},
		{"debug", gormlogger.Info},
		{"unknown", gormlogger.Warn},
		{"", gormlogger.Warn},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, MapGormLogLevel(tt.level))
		})
	}
}

func TestGormLoggerImplementsInterface(t *testing.T) {
	gormLog, _ := newGormLogger(t, gormlogger.Info)
	var _ gormlogger.Interface = gormLog
}
