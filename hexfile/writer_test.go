package hexfile

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteRecordText(t *testing.T) {
	var sb strings.Builder
	err := Write(&sb, []byte{0x28, 0x0F, 0x3F, 0xFF})
	require.NoError(t, err)
	require.Equal(t, ":04000000280F3FFF87\n:00000001FF\n", sb.String())
}

func TestWriteReadRoundTrip(t *testing.T) {
	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i * 7)
	}

	var sb strings.Builder
	require.NoError(t, Write(&sb, data))

	f, err := Read(strings.NewReader(sb.String()))
	require.NoError(t, err)

	merged, err := f.Merge(make([]byte, len(data)))
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, merged))
}

func TestWriteSplitsRecords(t *testing.T) {
	data := make([]byte, 40)
	var sb strings.Builder
	require.NoError(t, Write(&sb, data))

	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	require.Len(t, lines, 4) // 16 + 16 + 8 data bytes, then EOF
	require.True(t, strings.HasPrefix(lines[0], ":10000000"))
	require.True(t, strings.HasPrefix(lines[1], ":10001000"))
	require.True(t, strings.HasPrefix(lines[2], ":08002000"))
	require.Equal(t, ":00000001FF", lines[3])
}

func TestWriteEmpty(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, Write(&sb, nil))
	require.Equal(t, ":00000001FF\n", sb.String())
}
