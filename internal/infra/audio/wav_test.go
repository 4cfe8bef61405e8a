package audio

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeWAV builds a minimal PCM WAV with the given byte rate and data size.
func writeWAV(t *testing.T, byteRate, dataLen uint32) string {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(8000))
	binary.Write(&buf, binary.LittleEndian, byteRate)
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataLen)
	buf.Write(make([]byte, dataLen))

	path := filepath.Join(t.TempDir(), "probe.wav")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestDuration(t *testing.T) {
	path := writeWAV(t, 16000, 48000)
	d, err := Duration(path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, d)
}

func TestDuration_NotAWav(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not riff data"), 0o644))
	_, err := Duration(path)
	assert.Error(t, err)
}

func TestFakeDevice_TerminateEndsOp(t *testing.T) {
	dev := NewFakeDevice()
	h, err := dev.Play("x.wav")
	require.NoError(t, err)

	assert.True(t, h.Running())
	h.Terminate()
	assert.False(t, h.Running())
	require.NoError(t, h.Wait())

	op := dev.Ops()[0]
	assert.True(t, op.Terminated())
}
