package audio

import (
	"bytes"
	"encoding/binary"
)

// SamplesFromBytes converts little-endian PCM16 bytes to int16 samples.
// A trailing odd byte is dropped.
func SamplesFromBytes(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// EncodeWAV wraps PCM16 mono samples in a minimal RIFF/WAV container.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	dataBytes := len(samples) * 2
	var b bytes.Buffer

	// RIFF header
	b.WriteString("RIFF")
	_ = binary.Write(&b, binary.LittleEndian, uint32(36+dataBytes))
	b.WriteString("WAVE")

	// fmt chunk
	b.WriteString("fmt ")
	_ = binary.Write(&b, binary.LittleEndian, uint32(16))           // chunk size
	_ = binary.Write(&b, binary.LittleEndian, uint16(1))            // audio format = PCM
	_ = binary.Write(&b, binary.LittleEndian, uint16(1))            // channels
	_ = binary.Write(&b, binary.LittleEndian, uint32(sampleRate))   // sample rate
	_ = binary.Write(&b, binary.LittleEndian, uint32(sampleRate*2)) // byte rate
	_ = binary.Write(&b, binary.LittleEndian, uint16(2))            // block align
	_ = binary.Write(&b, binary.LittleEndian, uint16(16))           // bits per sample

	// data chunk
	b.WriteString("data")
	_ = binary.Write(&b, binary.LittleEndian, uint32(dataBytes))
	for _, s := range samples {
		_ = binary.Write(&b, binary.LittleEndian, s)
	}
	return b.Bytes()
}
