package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counters []struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

func (c counters) Table() *Table {
	t := NewTable("KEY", "COUNT")
	for _, row := range c {
		t.AddRow(row.Key, "n/a")
	}
	return t
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" JSON ")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatTable, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestWrite(t *testing.T) {
	data := counters{{Key: "sms_enviar:user:ana", Count: 3}}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatTable, data))
	assert.Contains(t, buf.String(), "KEY")
	assert.Contains(t, buf.String(), "sms_enviar:user:ana")

	buf.Reset()
	require.NoError(t, Write(&buf, FormatJSON, data))
	assert.JSONEq(t, `[{"key":"sms_enviar:user:ana","count":3}]`, buf.String())

	buf.Reset()
	require.NoError(t, Write(&buf, FormatYAML, data))
	assert.Contains(t, buf.String(), "key: sms_enviar:user:ana")
	assert.Contains(t, buf.String(), "count: 3")

	buf.Reset()
	require.NoError(t, Write(&buf, FormatTable, counters{}))
	assert.Equal(t, "No data found\n", buf.String())

	buf.Reset()
	require.NoError(t, Write(&buf, FormatTable, "plain"))
	assert.Equal(t, "plain\n", buf.String())
}
