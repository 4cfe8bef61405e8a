package audio

import (
	"encoding/binary"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
)

// Duration reads a WAV file's play length from its RIFF header. Pause-mode
// accounting needs this to know whether an accumulated offset has run past
// the end of the file.
func Duration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "failed to open wav file")
	}
	defer f.Close()

	var riff struct {
		ChunkID [4]byte
		Size    uint32
		Format  [4]byte
	}
	if err := binary.Read(f, binary.LittleEndian, &riff); err != nil {
		return 0, errors.Wrap(err, "failed to read riff header")
	}
	if string(riff.ChunkID[:]) != "RIFF" || string(riff.Format[:]) != "WAVE" {
		return 0, errors.New("not a wav file")
	}

	var byteRate uint32
	for {
		var chunk struct {
			ID   [4]byte
			Size uint32
		}
		if err := binary.Read(f, binary.LittleEndian, &chunk); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return 0, errors.New("wav file has no data chunk")
			}
			return 0, errors.Wrap(err, "failed to read chunk header")
		}

		switch string(chunk.ID[:]) {
		case "fmt ":
			var fmtChunk struct {
				AudioFormat   uint16
				NumChannels   uint16
				SampleRate    uint32
				ByteRate      uint32
				BlockAlign    uint16
				BitsPerSample uint16
			}
			if err := binary.Read(f, binary.LittleEndian, &fmtChunk); err != nil {
				return 0, errors.Wrap(err, "failed to read fmt chunk")
			}
			byteRate = fmtChunk.ByteRate
			if extra := int64(chunk.Size) - 16; extra > 0 {
				if _, err := f.Seek(extra, io.SeekCurrent); err != nil {
					return 0, errors.Wrap(err, "failed to skip fmt extension")
				}
			}
		case "data":
			if byteRate == 0 {
				return 0, errors.New("wav data chunk before fmt chunk")
			}
			secs := float64(chunk.Size) / float64(byteRate)
			return time.Duration(secs * float64(time.Second)), nil
		default:
			if _, err := f.Seek(int64(chunk.Size), io.SeekCurrent); err != nil {
				return 0, errors.Wrap(err, "failed to skip chunk")
			}
		}
	}
}
