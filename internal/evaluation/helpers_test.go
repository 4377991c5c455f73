package evaluation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func generateID(i int) string {
	return fmt.Sprintf("user-%06d", i)
}

// newTestEngine returns an engine writing its logs into the returned buffer.
func newTestEngine(t *testing.T) (*Engine, *bytes.Buffer) {
	t.Helper()

	var logBuffer bytes.Buffer
	engine := New(slog.New(slog.NewTextHandler(&logBuffer, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(engine.Close)
	return engine, &logBuffer
}

func mustParseFlags(t *testing.T, raw string) []Flag {
	t.Helper()

	var flags []Flag
	require.NoError(t, json.Unmarshal([]byte(raw), &flags))
	return flags
}

func keysOf(flags []Flag) []string {
	keys := make([]string, len(flags))
	for i, f := range flags {
		keys[i] = f.Key
	}
	return keys
}
