package domain

import (
	"encoding/binary"
	"math"
)

const wavHeaderSize = 44

// WAVDurationSeconds reads the canonical 44-byte RIFF header and returns the
// clip length rounded to two decimals, or nil when the header is unusable.
func WAVDurationSeconds(data []byte) *float64 {
	if len(data) < wavHeaderSize {
		return nil
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil
	}

	sampleRate := binary.LittleEndian.Uint32(data[24:28])
	byteRate := binary.LittleEndian.Uint32(data[28:32])
	dataSize := binary.LittleEndian.Uint32(data[40:44])
	if sampleRate == 0 || byteRate == 0 || dataSize == 0 {
		return nil
	}

	seconds := math.Round(float64(dataSize)/float64(byteRate)*100) / 100
	return &seconds
}

// ConcatWAV merges clips into one WAV. When every clip has a canonical header
// the first header is kept and its RIFF and data sizes cover all samples;
// otherwise the bytes are joined as is.
func ConcatWAV(clips [][]byte) []byte {
	if len(clips) == 1 {
		return clips[0]
	}
	canonical := len(clips) > 0
	for _, clip := range clips {
		if WAVDurationSeconds(clip) == nil {
			canonical = false
			break
		}
	}
	if !canonical {
		var out []byte
		for _, clip := range clips {
			out = append(out, clip...)
		}
		return out
	}

	out := append([]byte(nil), clips[0][:wavHeaderSize]...)
	for _, clip := range clips {
		out = append(out, clip[wavHeaderSize:]...)
	}
	dataSize := uint32(len(out) - wavHeaderSize)
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(out)-8))
	binary.LittleEndian.PutUint32(out[40:44], dataSize)
	return out
}
