package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	s := bufio.NewScanner(buf)
	var out []map[string]any
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	require.NoError(t, s.Err())
	return out
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	UseWriter(&buf)
	require.NoError(t, SetLevel("info"))

	Debug("debug message should be filtered")
	Info("info message", "k", 1)

	records := decodeLines(t, &buf)
	require.Len(t, records, 1)
	require.Equal(t, "info message", records[0]["msg"])

	buf.Reset()
	require.NoError(t, SetLevel("debug"))
	Debug("visible debug", "a", 2)
	records = decodeLines(t, &buf)
	require.Len(t, records, 1)
	require.Equal(t, "DEBUG", records[0]["level"])
}

func TestFieldExtraction(t *testing.T) {
	var buf bytes.Buffer
	UseWriter(&buf)
	require.NoError(t, SetLevel("debug"))

	l := WithCommand(WithEntity(Logger(), "0x0000000000000001", "00:1b:92:aa:bb:cc"), "AcquireEntity", 4)
	l.Info("sent aecp command", "extra", 42)

	records := decodeLines(t, &buf)
	require.Len(t, records, 1)
	rec := records[0]
	for _, k := range []string{"entity_id", "mac_address", "message_type", "sequence_id"} {
		require.Contains(t, rec, k)
	}
	require.Equal(t, "0x0000000000000001", rec["entity_id"])
	require.Equal(t, "AcquireEntity", rec["message_type"])
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"debug": "DEBUG",
		"info":  "INFO",
		"warn":  "WARN",
		"error": "ERROR",
	}
	for in, expect := range cases {
		require.NoError(t, SetLevel(in))
		require.Contains(t, strings.ToUpper(Level()), expect)
	}
	require.Error(t, SetLevel("bogus"))
}
