package audio

import (
	"errors"
)

// Fixed rates of the live path: microphone frames go out at 16 kHz and
// synthesized playback comes back at 24 kHz mono.
const (
	LiveInputSampleRate  = 16000
	LiveOutputSampleRate = 24000
	LiveChannels         = 1
)

var (
	ErrEmptyPayload  = errors.New("audio payload is empty")
	ErrOddPayload    = errors.New("audio payload has odd byte length")
	ErrBadSampleRate = errors.New("sample rate must be positive")
)

// Chunk is one opaque unit of encoded recorder output plus its codec tag.
// It is created once by the capture boundary and consumed exactly once.
type Chunk struct {
	Data []byte
	MIME string
}

// Buffer is a decoded, playable stretch of audio.
type Buffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	frames := len(b.Samples) / b.Channels
	return float64(frames) / float64(b.SampleRate)
}

// PCM16 returns the buffer as little-endian int16 bytes.
func (b *Buffer) PCM16() []byte {
	if b == nil {
		return nil
	}
	return Int16ToBytes(Float32ToInt16Slice(b.Samples))
}

// EncodePCM16 packs normalized float samples into the live wire encoding:
// lossless little-endian int16, no compression.
func EncodePCM16(samples []float32) []byte {
	return Int16ToBytes(Float32ToInt16Slice(samples))
}

// DecodePlayback decodes returned audio bytes into a playable buffer. A
// malformed payload is fatal to this unit only; callers drop it and keep the
// session alive.
func DecodePlayback(data []byte, sampleRate int, channels int) (*Buffer, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	if len(data)%2 != 0 {
		return nil, ErrOddPayload
	}
	if sampleRate <= 0 {
		return nil, ErrBadSampleRate
	}
	if channels <= 0 {
		channels = 1
	}
	return &Buffer{
		Samples:    Int16ToFloat32Slice(BytesToInt16(data)),
		SampleRate: sampleRate,
		Channels:   channels,
	}, nil
}
