package logger

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIngest_Logger(t *testing.T) {
	t.Parallel()

	t.Run("verbose enables debug", func(t *testing.T) {
		t.Parallel()
		require.True(t, New(true).Enabled(context.Background(), slog.LevelDebug))
		require.False(t, New(false).Enabled(context.Background(), slog.LevelDebug))
	})

	t.Run("timestamps are utc with millisecond precision", func(t *testing.T) {
		t.Parallel()
		loc := time.FixedZone("ART", -3*60*60)
		ts := time.Date(2025, 3, 7, 9, 0, 0, 123456789, loc)
		require.Equal(t, "2025-03-07T12:00:00.123Z", formatRFC3339Millis(ts))
	})
}
