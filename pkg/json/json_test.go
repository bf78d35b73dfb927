package json

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type taskState struct {
	Columns []string `json:"columns"`
	Rows    int      `json:"rows"`
}

func TestMarshalUnmarshal(t *testing.T) {
	data, err := Marshal(taskState{Columns: []string{"id"}, Rows: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"columns":["id"],"rows":3}`, string(data))

	var back taskState
	require.NoError(t, Unmarshal(data, &back))
	assert.Equal(t, 3, back.Rows)
}

func TestUnmarshalNumbersKeepsPrecision(t *testing.T) {
	var m map[string]interface{}
	require.NoError(t, UnmarshalNumbers([]byte(`{"id": 9007199254740993}`), &m))
	n, ok := m["id"].(Number)
	require.True(t, ok)
	assert.Equal(t, "9007199254740993", n.String())
}

func TestNewDecoderStreamsLines(t *testing.T) {
	dec := NewDecoder(strings.NewReader("{\"a\":1}\n{\"a\":2}\n"))
	var got []string
	for dec.More() {
		var m map[string]interface{}
		require.NoError(t, dec.Decode(&m))
		got = append(got, m["a"].(Number).String())
	}
	assert.Equal(t, []string{"1", "2"}, got)
}

func TestStreamingEncoderArray(t *testing.T) {
	var buf bytes.Buffer
	enc := NewStreamingEncoder(&buf, true)
	require.NoError(t, enc.Encode(map[string]int{"a": 1}))
	require.NoError(t, enc.Encode(map[string]int{"a": 2}))
	require.NoError(t, enc.Close())
	assert.JSONEq(t, `[{"a":1},{"a":2}]`, buf.String())
}

func TestStreamingEncoderLines(t *testing.T) {
	var buf bytes.Buffer
	enc := NewStreamingEncoder(&buf, false)
	require.NoError(t, enc.Encode(1))
	require.NoError(t, enc.Encode(2))
	require.NoError(t, enc.Close())
	assert.Equal(t, "1\n2\n", buf.String())
}

func TestBufferPool(t *testing.T) {
	buf := GetBuffer()
	buf.WriteString("x")
	PutBuffer(buf)
	assert.Equal(t, 0, GetBuffer().Len())
}
