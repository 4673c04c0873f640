package audio

import (
	"sync"
	"time"
)

// Recorder accumulates PCM16 mic audio at a fixed rate and cuts it into
// WAV chunks for transcription.
type Recorder struct {
	mu         sync.Mutex
	pcm        []byte
	sampleRate int
	channels   int
	lastCut    time.Time
}

// NewRecorder creates a recorder for the given capture format.
func NewRecorder(sampleRate int, channels int) *Recorder {
	if sampleRate <= 0 {
		sampleRate = LiveInputSampleRate
	}
	if channels <= 0 {
		channels = 1
	}
	return &Recorder{
		sampleRate: sampleRate,
		channels:   channels,
		lastCut:    time.Now(),
	}
}

// Write appends a PCM16 frame to the pending buffer.
func (r *Recorder) Write(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	r.mu.Lock()
	r.pcm = append(r.pcm, pcm...)
	r.mu.Unlock()
}

// Pending reports the buffered byte count.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pcm)
}

// Elapsed reports time since the last cut.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Since(r.lastCut)
}

// Cut drains the buffered audio as a WAV chunk. It returns false when no
// audio is pending.
func (r *Recorder) Cut() (Chunk, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastCut = time.Now()
	if len(r.pcm) == 0 {
		return Chunk{}, false
	}
	chunk := Chunk{
		Data: EncodeWAV(r.pcm, r.sampleRate, r.channels),
		MIME: "audio/wav",
	}
	r.pcm = nil
	return chunk, true
}

// Reset discards pending audio without producing a chunk.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.pcm = nil
	r.lastCut = time.Now()
	r.mu.Unlock()
}
