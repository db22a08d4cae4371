package testsupport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResetProbeSucceeds(t *testing.T) {
	tr, dev, err := OpenPair()
	require.NoError(t, err)
	defer dev.Close()
	defer tr.Close()

	dev.SetVersion(0x07)
	version, hasVersion, err := tr.Reset()
	require.NoError(t, err)
	require.True(t, hasVersion)
	require.Equal(t, byte(0x07), version)
}

func TestResetProbeDTRHighUnit(t *testing.T) {
	tr, dev, err := OpenPair()
	require.NoError(t, err)
	defer dev.Close()
	defer tr.Close()

	// A DTR-high unit stays silent after the probe's pulse, so the first
	// read comes back empty and Reset must retry with DTR held high.
	dev.SetDTRHigh(true)
	dev.SetVersion(0x03)
	version, hasVersion, err := tr.Reset()
	require.NoError(t, err)
	require.True(t, hasVersion)
	require.Equal(t, byte(0x03), version)
}

func TestResetProbeSilentDeviceFails(t *testing.T) {
	tr, dev, err := OpenPair()
	require.NoError(t, err)
	defer dev.Close()
	defer tr.Close()

	dev.SetSilent(true)
	_, _, err = tr.Reset()
	require.Error(t, err)
}

func TestResetProbeBadFirstByteFails(t *testing.T) {
	tr, dev, err := OpenPair()
	require.NoError(t, err)
	defer dev.Close()
	defer tr.Close()

	dev.SetBadFirstByte(true)
	_, _, err = tr.Reset()
	require.Error(t, err)
}
