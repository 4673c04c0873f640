package audio

import (
	"encoding/binary"
	"errors"
)

const wavHeaderSize = 44

// EncodeWAV wraps raw PCM16 bytes in a minimal RIFF/WAVE container.
func EncodeWAV(pcm []byte, sampleRate int, channels int) []byte {
	if sampleRate <= 0 {
		sampleRate = LiveInputSampleRate
	}
	if channels <= 0 {
		channels = 1
	}

	byteRate := sampleRate * channels * 2
	out := make([]byte, wavHeaderSize+len(pcm))

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(channels*2))
	binary.LittleEndian.PutUint16(out[34:36], 16)

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[wavHeaderSize:], pcm)

	return out
}

// DecodeWAV extracts PCM16 bytes and format info from a RIFF/WAVE payload.
func DecodeWAV(data []byte) (pcm []byte, sampleRate int, channels int, err error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, 0, errors.New("invalid wav payload")
	}

	sampleRate = LiveInputSampleRate
	channels = 1
	bitsPerSample := 16

	offset := 12
	dataOffset := -1
	dataSize := 0
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		offset += 8
		if chunkSize < 0 {
			return nil, 0, 0, errors.New("invalid wav chunk size")
		}
		if offset+chunkSize > len(data) {
			chunkSize = len(data) - offset
		}

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 {
				channels = int(binary.LittleEndian.Uint16(data[offset+2 : offset+4]))
				sampleRate = int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
				bitsPerSample = int(binary.LittleEndian.Uint16(data[offset+14 : offset+16]))
			}
		case "data":
			dataOffset = offset
			dataSize = chunkSize
		}

		offset += chunkSize
		if chunkSize%2 == 1 {
			offset++
		}
	}

	if dataOffset < 0 || dataSize <= 0 || dataOffset+dataSize > len(data) {
		return nil, 0, 0, errors.New("wav data chunk not found")
	}
	if bitsPerSample != 16 {
		return nil, 0, 0, errors.New("unsupported wav bits per sample")
	}
	return data[dataOffset : dataOffset+dataSize], sampleRate, channels, nil
}
