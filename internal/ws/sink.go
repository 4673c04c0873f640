package ws

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/lumitv/voice-gateway/internal/protocol"
	"github.com/lumitv/voice-gateway/pkg/audio"
	"github.com/lumitv/voice-gateway/pkg/live"
)

const volumeSliceMs = 20

// playbackSink delivers scheduled audio buffers to the UI client on a wall
// clock. A buffer scheduled in the future is held back until its start time
// so interleaved text and audio stay in sync.
type playbackSink struct {
	sess  *session
	epoch time.Time
}

func newPlaybackSink(sess *session) *playbackSink {
	return &playbackSink{sess: sess, epoch: time.Now()}
}

func (p *playbackSink) Now() float64 {
	return time.Since(p.epoch).Seconds()
}

func (p *playbackSink) Start(buf *audio.Buffer, at float64, onEnded func()) live.Handle {
	h := &playbackHandle{}

	delay := time.Duration((at - p.Now()) * float64(time.Second))
	if delay < 0 {
		delay = 0
	}
	duration := time.Duration(buf.Duration() * float64(time.Second))

	h.sendTimer = time.AfterFunc(delay, func() {
		if h.isStopped() {
			return
		}
		p.sess.sendAudioChunk(buf.PCM16(), buf.SampleRate, buf.Channels)
	})
	h.endTimer = time.AfterFunc(delay+duration, func() {
		if h.isStopped() {
			return
		}
		onEnded()
	})
	return h
}

type playbackHandle struct {
	mu        sync.Mutex
	stopped   bool
	sendTimer *time.Timer
	endTimer  *time.Timer
}

func (h *playbackHandle) Stop() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
	if h.sendTimer != nil {
		h.sendTimer.Stop()
	}
	if h.endTimer != nil {
		h.endTimer.Stop()
	}
}

func (h *playbackHandle) isStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

func (s *session) sendAudioChunk(pcm []byte, sampleRate int, channels int) {
	if len(pcm) == 0 {
		return
	}
	sliceLength := volumeSliceMs
	volumes := computeVolumes(pcm, sampleRate, channels, sliceLength)
	s.sendJSON(map[string]any{
		"type":              protocol.MsgAudio,
		"audio_pcm":         base64.StdEncoding.EncodeToString(pcm),
		"audio_format":      "pcm16",
		"audio_sample_rate": sampleRate,
		"audio_channels":    channels,
		"volumes":           volumes,
		"slice_length":      sliceLength,
	})
}

func computeVolumes(pcm []byte, sampleRate int, channels int, frameDuration int) []float64 {
	if len(pcm) == 0 || sampleRate <= 0 || channels <= 0 {
		return nil
	}
	samples := len(pcm) / 2
	if samples == 0 {
		return nil
	}
	frames := samples / channels
	if frames == 0 {
		return nil
	}
	chunkSize := sampleRate * frameDuration / 1000
	if chunkSize <= 0 {
		chunkSize = frames
	}

	volumes := make([]float64, 0, (frames+chunkSize-1)/chunkSize)
	for start := 0; start < frames; start += chunkSize {
		end := start + chunkSize
		if end > frames {
			end = frames
		}
		volumes = append(volumes, rmsPCM(pcm, channels, start, end))
	}

	maxVolume := 0.0
	for _, v := range volumes {
		if v > maxVolume {
			maxVolume = v
		}
	}
	if maxVolume == 0 {
		return volumes
	}
	for i := range volumes {
		volumes[i] = volumes[i] / maxVolume
	}
	return volumes
}

func rmsPCM(pcm []byte, channels int, startFrame int, endFrame int) float64 {
	if startFrame >= endFrame {
		return 0
	}
	sum := 0.0
	count := 0
	for frame := startFrame; frame < endFrame; frame++ {
		for ch := 0; ch < channels; ch++ {
			idx := (frame*channels + ch) * 2
			if idx+2 > len(pcm) {
				return finalizeRMS(sum, count)
			}
			sample := int16(binary.LittleEndian.Uint16(pcm[idx : idx+2]))
			value := float64(sample)
			sum += value * value
			count++
		}
	}
	return finalizeRMS(sum, count)
}

func finalizeRMS(sum float64, count int) float64 {
	if count == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(count))
}
