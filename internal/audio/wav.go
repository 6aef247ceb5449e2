package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"time"
)

// ErrEmptyInput is returned when the encoder is given zero samples.
// Reaching it indicates a flush fired with nothing pending, which the
// session guard is supposed to make impossible.
var ErrEmptyInput = errors.New("wav encoder given empty input")

const wavHeaderSize = 44

// EncodeWAV serializes ordered float32 mono segments into a canonical
// 16-bit PCM WAV byte layout. The function is stateless and
// deterministic: the same segment sequence always yields byte-identical
// output, and segment order is preserved exactly as received.
func EncodeWAV(segments [][]float32, sampleRate int) ([]byte, error) {
	total := 0
	for _, seg := range segments {
		total += len(seg)
	}
	if total == 0 {
		return nil, ErrEmptyInput
	}

	dataBytes := total * 2
	out := make([]byte, wavHeaderSize+dataBytes)

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataBytes))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(out[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(out[22:24], 1)  // mono
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(sampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(out[32:34], 2)                    // block align
	binary.LittleEndian.PutUint16(out[34:36], 16)                   // bits per sample

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataBytes))

	off := wavHeaderSize
	for _, seg := range segments {
		for _, sample := range seg {
			if sample > 1.0 {
				sample = 1.0
			} else if sample < -1.0 {
				sample = -1.0
			}
			val := int16(math.Round(float64(sample) * 32767))
			binary.LittleEndian.PutUint16(out[off:off+2], uint16(val))
			off += 2
		}
	}

	return out, nil
}

// WAVDuration reads the fmt and data chunks of a 16-bit PCM WAV buffer
// and returns the playback duration. Returns zero for anything it
// cannot parse; callers treat that as "duration unknown".
func WAVDuration(wav []byte) time.Duration {
	if len(wav) < wavHeaderSize || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return 0
	}
	sampleRate := binary.LittleEndian.Uint32(wav[24:28])
	channels := binary.LittleEndian.Uint16(wav[22:24])
	bitsPerSample := binary.LittleEndian.Uint16(wav[34:36])
	dataBytes := binary.LittleEndian.Uint32(wav[40:44])
	if sampleRate == 0 || channels == 0 || bitsPerSample == 0 {
		return 0
	}
	byteRate := int64(sampleRate) * int64(channels) * int64(bitsPerSample) / 8
	if byteRate == 0 {
		return 0
	}
	return time.Duration(int64(dataBytes) * int64(time.Second) / byteRate)
}
