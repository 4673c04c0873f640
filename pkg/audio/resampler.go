package audio

import (
	"errors"

	resampler "github.com/godeps/go-audio-soxr"
)

// StreamResampler keeps resampling state across mic frames so continuous
// capture can be converted to the live input rate without seams.
type StreamResampler struct {
	inRate  int
	outRate int
	r       *resampler.SimpleResamplerFloat32
	outBuf  []float32
}

// NewStreamResampler creates a streaming resampler for continuous audio.
func NewStreamResampler(inRate, outRate int) (*StreamResampler, error) {
	if inRate <= 0 || outRate <= 0 {
		return nil, errors.New("invalid resampler rates")
	}
	r, err := resampler.NewEngineFloat32(float64(inRate), float64(outRate), resampler.QualityHigh)
	if err != nil {
		return nil, err
	}
	return &StreamResampler{inRate: inRate, outRate: outRate, r: r}, nil
}

// Close releases the underlying resampler.
func (s *StreamResampler) Close() {
	if s == nil || s.r == nil {
		return
	}
	s.r.Reset()
	s.r = nil
	s.outBuf = nil
}

// AppendPCM appends PCM16 samples for resampling.
func (s *StreamResampler) AppendPCM(pcm []int16) error {
	if s == nil || s.r == nil || len(pcm) == 0 {
		return nil
	}
	out, err := s.r.Process(Int16ToFloat32Slice(pcm))
	if err != nil {
		return err
	}
	if len(out) > 0 {
		s.outBuf = append(s.outBuf, out...)
	}
	return nil
}

// Flush pushes any samples still held inside the resampler into the
// output buffer.
func (s *StreamResampler) Flush() error {
	if s == nil || s.r == nil {
		return nil
	}
	out, err := s.r.Flush()
	if err != nil {
		return err
	}
	if len(out) > 0 {
		s.outBuf = append(s.outBuf, out...)
	}
	return nil
}

// Drain returns everything resampled so far as PCM16 bytes.
func (s *StreamResampler) Drain() []byte {
	if s == nil || len(s.outBuf) == 0 {
		return nil
	}
	out := EncodePCM16(s.outBuf)
	s.outBuf = s.outBuf[:0]
	return out
}
