package adapter

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeRequest_ArrayOfBulkStrings(t *testing.T) {
	raw := "*3\r\n$3\r\nSET\r\n$1\r\na\r\n$3\r\nfoo\r\n"
	args, err := decodeRequest(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)
	require.Equal(t, []string{"SET", "a", "foo"}, args)
}

func TestDecodeRequest_EmptyBulkString(t *testing.T) {
	raw := "*2\r\n$3\r\nGET\r\n$0\r\n\r\n"
	args, err := decodeRequest(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)
	require.Equal(t, []string{"GET", ""}, args)
}

func TestDecodeRequest_RejectsNonArrayHeader(t *testing.T) {
	raw := "$3\r\nfoo\r\n"
	_, err := decodeRequest(bufio.NewReader(strings.NewReader(raw)))
	require.Error(t, err)
}

func TestEncode_SimpleStringErrorIntegerBulkNull(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	require.NoError(t, writeSimpleString(w, "OK"))
	require.NoError(t, writeError(w, "ERR boom"))
	require.NoError(t, writeInteger(w, 1))
	require.NoError(t, writeBulkString(w, "hi"))
	require.NoError(t, writeNullBulkString(w))
	require.NoError(t, w.Flush())

	require.Equal(t, "+OK\r\n-ERR boom\r\n:1\r\n$2\r\nhi\r\n$-1\r\n", buf.String())
}
