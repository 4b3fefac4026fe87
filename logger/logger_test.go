package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("writes component and fields", func(t *testing.T) {
		var buf bytes.Buffer
		log := New(zerolog.New(&buf), "test", zerolog.InfoLevel)

		log.Info("hello", Field{Key: "answer", Value: 42})

		out := buf.String()
		assert.Contains(t, out, `"component":"test"`)
		assert.Contains(t, out, `"answer":42`)
		assert.Contains(t, out, `"message":"hello"`)
	})

	t.Run("filters below level", func(t *testing.T) {
		var buf bytes.Buffer
		log := New(zerolog.New(&buf), "test", zerolog.WarnLevel)

		log.Info("dropped")
		log.Warn("kept")

		out := buf.String()
		assert.NotContains(t, out, "dropped")
		assert.Contains(t, out, "kept")
	})
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	log := New(zerolog.New(&buf), "test", zerolog.DebugLevel)

	derived := log.With(Field{Key: "conn", Value: 7})
	require.NotNil(t, derived)
	derived.Debug("derived entry")

	assert.Contains(t, buf.String(), `"conn":7`)

	buf.Reset()
	log.Debug("original entry")
	assert.NotContains(t, buf.String(), `"conn":7`)
}

func TestNop(t *testing.T) {
	log := Nop()
	require.NotNil(t, log)

	// Must not panic and With must keep returning a usable logger.
	log.Debug("a")
	log.Info("b")
	log.Warn("c")
	log.Error("d")
	log.With(Field{Key: "k", Value: "v"}).Info("e")
}
