package audio

import (
	"bytes"
	"encoding/binary"
)

// WAV container constants for 16-bit PCM.
const (
	wavHeaderSize    = 44
	wavPCMFormatTag  = 1
	wavBitsPerSample = 16
	wavBytesPerSamp  = 2
)

// EncodeWAV wraps little-endian int16 PCM in a RIFF/WAVE container with a
// correct duration-bearing header. The third-party WAV encoder in this
// module's dependency set writes through an io.WriteSeeker and is used for
// file targets; blobs assembled in memory use this writer instead.
func EncodeWAV(pcm []byte, f Format) []byte {
	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(pcm))
	byteRate := f.SampleRate * f.Channels * wavBytesPerSamp
	blockAlign := f.Channels * wavBytesPerSamp

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(wavPCMFormatTag))
	binary.Write(&buf, binary.LittleEndian, uint16(f.Channels))
	binary.Write(&buf, binary.LittleEndian, uint32(f.SampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(wavBitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}
