package output

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSinkDecodesZerologEvents(t *testing.T) {
	sink := NewLogSink(4)
	logger := zerolog.New(sink).With().Timestamp().Logger()

	logger.Info().Msg("segment started")
	logger.Warn().Int("segment", 2).Str("event", "retrying").Str("error", "boom").Msg("attempt failed")
	logger.Error().Int("segment", 2).Str("event", "exiting").Msg("giving up")
	sink.Close()

	entries := sink.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "info", entries[0].Level)
	assert.Nil(t, entries[0].Segment)
	assert.Equal(t, "warn", entries[1].Level)
	require.NotNil(t, entries[1].Segment)
	assert.Equal(t, 2, *entries[1].Segment)
	assert.Equal(t, "WARN | attempt failed: boom", entries[1].String())
	assert.False(t, entries[0].Time.IsZero())

	assert.Equal(t, 1, sink.Count(2, "retrying"))
	assert.Equal(t, 1, sink.Count(2, "exiting"))
	assert.Equal(t, 0, sink.Count(1, "retrying"))
}

func TestLogSinkConcurrentWriters(t *testing.T) {
	sink := NewLogSink(2)
	logger := zerolog.New(sink)

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for range 50 {
				logger.Info().Int("segment", i).Str("event", "tick").Msg("a fairly long message that would not fit a fixed buffer for long")
			}
		}(i)
	}
	wg.Wait()
	sink.Close()

	assert.Len(t, sink.Entries(), 32*50)
	for i := range 32 {
		assert.Equal(t, 50, sink.Count(i, "tick"))
	}
	assert.Len(t, sink.Tail(5), 5)
}

func TestLogSinkWriteAfterClose(t *testing.T) {
	sink := NewLogSink(1)
	sink.Close()
	sink.Close()
	_, err := sink.Write([]byte(`{"level":"info"}`))
	assert.ErrorIs(t, err, ErrSinkClosed)
}

func TestLogSinkPlainLine(t *testing.T) {
	sink := NewLogSink(1)
	_, err := sink.Write([]byte("not json\n"))
	require.NoError(t, err)
	sink.Close()
	entries := sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "not json", entries[0].Message)
}
