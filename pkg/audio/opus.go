package audio

import (
	"errors"

	godepsopus "github.com/godeps/opus"
)

const opusMaxFrameDurationMs = 120

// OpusDecoder turns opus mic frames into PCM16 bytes.
type OpusDecoder struct {
	dec        *godepsopus.Decoder
	sampleRate int
	channels   int
}

// NewOpusDecoder creates a decoder for the given capture format.
func NewOpusDecoder(sampleRate, channels int) (*OpusDecoder, error) {
	if sampleRate <= 0 {
		sampleRate = LiveInputSampleRate
	}
	if channels <= 0 {
		channels = 1
	}
	dec, err := godepsopus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, err
	}
	return &OpusDecoder{dec: dec, sampleRate: sampleRate, channels: channels}, nil
}

// Decode decodes one opus frame to PCM16 bytes.
func (d *OpusDecoder) Decode(frame []byte) ([]byte, error) {
	if d == nil || d.dec == nil {
		return nil, errors.New("opus decoder is not initialized")
	}
	if len(frame) == 0 {
		return nil, nil
	}

	maxSamples := d.sampleRate * opusMaxFrameDurationMs / 1000
	if maxSamples <= 0 {
		maxSamples = 5760
	}
	pcm := make([]int16, maxSamples*d.channels)
	samplesDecoded, err := d.dec.Decode(frame, pcm)
	if err != nil {
		return nil, err
	}
	if samplesDecoded <= 0 {
		return nil, nil
	}
	return Int16ToBytes(pcm[:samplesDecoded*d.channels]), nil
}
