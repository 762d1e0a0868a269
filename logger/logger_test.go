package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}

	return out
}

func TestNewZerologLogger(t *testing.T) {
	t.Run("adds service and fields", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewZerologLogger(zerolog.New(&buf), "lrcp", zerolog.DebugLevel)

		l.Info("session opened", Field{Key: "session", Value: 7})

		lines := decodeLines(t, &buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "lrcp", lines[0]["service"])
		assert.Equal(t, "session opened", lines[0]["message"])
		assert.Equal(t, float64(7), lines[0]["session"])
		assert.Contains(t, lines[0], "time")
	})

	t.Run("filters below level", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewZerologLogger(zerolog.New(&buf), "svc", zerolog.WarnLevel)

		l.Debug("hidden")
		l.Info("hidden")
		l.Warn("shown")
		l.Error("shown too")

		assert.Len(t, decodeLines(t, &buf), 2)
	})

	t.Run("With does not modify parent", func(t *testing.T) {
		var buf bytes.Buffer
		parent := NewZerologLogger(zerolog.New(&buf), "svc", zerolog.InfoLevel)
		child := parent.With(Field{Key: "conn", Value: "a"})

		child.Info("child")
		parent.Info("parent")

		lines := decodeLines(t, &buf)
		require.Len(t, lines, 2)
		assert.Equal(t, "a", lines[0]["conn"])
		assert.NotContains(t, lines[1], "conn")
		assert.NoError(t, child.Close())
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	t.Run("rejects unknown level", func(t *testing.T) {
		_, err := New(Config{Service: "svc", Level: "loud"})
		assert.Error(t, err)
	})

	t.Run("writes to rotated file", func(t *testing.T) {
		dir := t.TempDir()
		l, err := New(Config{Service: "svc", Level: "info", Format: FormatJSON, Dir: dir})
		require.NoError(t, err)

		l.Info("to file")
		require.NoError(t, l.Close())
		require.NoError(t, l.Close())

		name := filepath.Join(dir, "svc_"+time.Now().Format(dateLayout)+".log")
		data, err := os.ReadFile(name)
		require.NoError(t, err)
		assert.Contains(t, string(data), "to file")
	})
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info("nothing")
	assert.NotNil(t, l.With(Field{Key: "k", Value: 1}))
	assert.NoError(t, l.Close())
}

func TestDailyFileWriter(t *testing.T) {
	t.Run("switches file when date changes", func(t *testing.T) {
		dir := t.TempDir()
		w, err := NewDailyFileWriter("svc", dir)
		require.NoError(t, err)
		defer w.Close()

		day := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)
		w.now = func() time.Time { return day }

		_, err = w.Write([]byte("first\n"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "svc_2024-03-01.log"), w.CurrentLogFile())

		day = day.Add(2 * time.Minute)
		_, err = w.Write([]byte("second\n"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "svc_2024-03-02.log"), w.CurrentLogFile())

		data, err := os.ReadFile(filepath.Join(dir, "svc_2024-03-02.log"))
		require.NoError(t, err)
		assert.Equal(t, "second\n", string(data))
	})

	t.Run("write after close fails", func(t *testing.T) {
		w, err := NewDailyFileWriter("svc", t.TempDir())
		require.NoError(t, err)
		require.NoError(t, w.Close())

		_, err = w.Write([]byte("x"))
		assert.ErrorIs(t, err, errWriterClosed)
		assert.Equal(t, "", w.CurrentLogFile())
	})
}
