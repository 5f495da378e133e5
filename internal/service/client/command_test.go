package client

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestReadMessages accepts object streams and arrays.
func TestReadMessages(t *testing.T) {
	t.Parallel()

	messages, err := readMessages(strings.NewReader(`{"a":1}
{"b":2}
[{"c":3},{"d":4}]`))
	require.NoError(t, err)
	require.Len(t, messages, 4)
	require.JSONEq(t, `{"a":1}`, string(messages[0]))
	require.JSONEq(t, `{"d":4}`, string(messages[3]))

	messages, err = readMessages(strings.NewReader(""))
	require.NoError(t, err)
	require.Empty(t, messages)

	_, err = readMessages(strings.NewReader(`{"a":`))
	require.Error(t, err)
}

// TestSession_Print checks the JSON output helpers.
func TestSession_Print(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	s := &Session{out: &out}

	require.NoError(t, s.print(map[string]any{"id": "wind", "status": "shelved"}))
	require.JSONEq(t, `{"id":"wind","status":"shelved"}`, out.String())

	out.Reset()

	require.NoError(t, s.printStrings([]string{"weather", "wind"}))
	require.JSONEq(t, `["weather","wind"]`, out.String())
}
