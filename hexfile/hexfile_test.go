package hexfile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadDataRecord(t *testing.T) {
	src := ":0400000001020304F2\n:00000001FF\n"
	f, err := Read(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, f.Records, 1)
	require.Equal(t, uint32(0), f.Records[0].Address)
	require.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, f.Records[0].Data)
}

func buildRecord(t *testing.T, recordType byte, address uint16, data []byte) string {
	t.Helper()
	body := hexBytes(byte(len(data))) + hexBytes16(address) + hexBytes(recordType) + bytesToHex(data)
	cs := checksumOf(":" + body + "00")
	return ":" + body + hexBytes(cs)
}

func hexBytes(b byte) string {
	const hexDigits = "0123456789ABCDEF"
	return string([]byte{hexDigits[b>>4], hexDigits[b&0xF]})
}

func hexBytes16(v uint16) string {
	return hexBytes(byte(v>>8)) + hexBytes(byte(v))
}

func bytesToHex(data []byte) string {
	var sb strings.Builder
	for _, b := range data {
		sb.WriteString(hexBytes(b))
	}
	return sb.String()
}

func TestAddressFolding(t *testing.T) {
	cases := []struct {
		name       string
		extRecord  string
		wantOffset uint32
	}{
		{"linear", buildRecord(t, 4, 0, []byte{0x00, 0x01}), 0x10000},
		{"segment", buildRecord(t, 2, 0, []byte{0x00, 0x01}), 0x10},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			dataRec := buildRecord(t, 0, 0x0010, []byte{0xAA, 0xBB})
			eofRec := buildRecord(t, 1, 0, nil)
			src := c.extRecord + "\n" + dataRec + "\n" + eofRec + "\n"
			f, err := Read(strings.NewReader(src))
			require.NoError(t, err)
			require.Len(t, f.Records, 1)
			require.Equal(t, c.wantOffset+0x0010, f.Records[0].Address)
		})
	}
}

func TestReadBadChecksum(t *testing.T) {
	_, err := Read(strings.NewReader(":0400000001020304FF\n"))
	require.Error(t, err)
	var ce InvalidChecksumError
	require.ErrorAs(t, err, &ce)
}

func TestReadBadLength(t *testing.T) {
	_, err := Read(strings.NewReader(":0500000001020304" + "F1\n"))
	require.Error(t, err)
	var re InvalidRecordError
	require.ErrorAs(t, err, &re)
}

func TestReadMissingColon(t *testing.T) {
	_, err := Read(strings.NewReader("0400000001020304F2\n"))
	require.Error(t, err)
}

func TestReadExtraRecordAfterEOF(t *testing.T) {
	src := ":00000001FF\n:0400000001020304F2\n"
	_, err := Read(strings.NewReader(src))
	require.Error(t, err)
}

func TestReadUnknownRecordType(t *testing.T) {
	rec := buildRecord(t, 9, 0, []byte{0x01})
	_, err := Read(strings.NewReader(rec + "\n"))
	require.Error(t, err)
}

func TestMerge(t *testing.T) {
	f := &File{Records: []Record{
		{Address: 2, Data: []byte{0xAA, 0xBB}},
	}}
	out, err := f.Merge([]byte{0, 0, 0, 0, 0})
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0xAA, 0xBB, 0}, out)
}

func TestMergeOutOfRange(t *testing.T) {
	f := &File{Records: []Record{
		{Address: 4, Data: []byte{0xAA, 0xBB}},
	}}
	_, err := f.Merge([]byte{0, 0, 0, 0})
	require.Error(t, err)
}
