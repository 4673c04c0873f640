package transcribe

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/lumitv/voice-gateway/pkg/audio"
	"github.com/lumitv/voice-gateway/pkg/command"
)

// Callbacks receive pipeline results on the processing goroutine.
type Callbacks struct {
	OnTranscription func(text string)
	OnToken         func(token command.Token)
	OnError         func(err error)
	// OnDrain fires when the in-flight slot and the queue are both empty.
	OnDrain func()
}

// PipelineConfig tunes queueing behavior.
type PipelineConfig struct {
	// MaxQueued caps the chunks waiting behind the in-flight one. Zero
	// means unbounded; when the cap is hit the oldest queued chunk is
	// dropped.
	MaxQueued int
}

// Pipeline serializes chunk transcription: one chunk in flight, the rest
// queued in arrival order. A failed chunk is logged and dropped; the
// pipeline keeps going.
type Pipeline struct {
	transcriber Transcriber
	normalizer  *command.Normalizer
	callbacks   Callbacks
	cfg         PipelineConfig
	logger      *zap.Logger

	mu       sync.Mutex
	busy     bool
	queue    []audio.Chunk
	segments []string
}

// NewPipeline creates a pipeline. A nil normalizer gets the built-in app
// table.
func NewPipeline(transcriber Transcriber, normalizer *command.Normalizer, callbacks Callbacks, cfg PipelineConfig, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if normalizer == nil {
		normalizer = command.NewNormalizer(nil)
	}
	return &Pipeline{
		transcriber: transcriber,
		normalizer:  normalizer,
		callbacks:   callbacks,
		cfg:         cfg,
		logger:      logger,
	}
}

// Submit hands one chunk to the pipeline. When a chunk is already in
// flight the new one waits its turn; Submit never blocks on transcription.
func (p *Pipeline) Submit(ctx context.Context, chunk audio.Chunk) {
	if len(chunk.Data) == 0 {
		return
	}

	p.mu.Lock()
	if p.busy {
		if p.cfg.MaxQueued > 0 && len(p.queue) >= p.cfg.MaxQueued {
			p.queue = p.queue[1:]
			p.logger.Warn("transcription queue full, dropping oldest chunk",
				zap.Int("max_queued", p.cfg.MaxQueued),
			)
		}
		p.queue = append(p.queue, chunk)
		p.mu.Unlock()
		return
	}
	p.busy = true
	p.mu.Unlock()

	go p.drain(ctx, chunk)
}

// QueueLen reports the number of chunks waiting behind the in-flight one.
func (p *Pipeline) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Context returns the rolling conversation context.
func (p *Pipeline) Context() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.Join(p.segments, " ")
}

// ClearContext forgets the accumulated conversation.
func (p *Pipeline) ClearContext() {
	p.mu.Lock()
	p.segments = nil
	p.mu.Unlock()
}

func (p *Pipeline) drain(ctx context.Context, chunk audio.Chunk) {
	for {
		p.process(ctx, chunk)

		p.mu.Lock()
		if len(p.queue) == 0 || ctx.Err() != nil {
			p.busy = false
			p.queue = nil
			p.mu.Unlock()
			if p.callbacks.OnDrain != nil {
				p.callbacks.OnDrain()
			}
			return
		}
		chunk = p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()
	}
}

func (p *Pipeline) process(ctx context.Context, chunk audio.Chunk) {
	result, err := p.transcriber.Transcribe(ctx, chunk, p.Context())
	if err != nil {
		p.logger.Warn("chunk transcription failed", zap.Error(err))
		if p.callbacks.OnError != nil {
			p.callbacks.OnError(err)
		}
		return
	}

	text := strings.TrimSpace(result.Transcription)
	if text == "" {
		// Noise or silence; nothing to report and nothing for context.
		return
	}

	p.mu.Lock()
	p.segments = append(p.segments, text)
	p.mu.Unlock()

	if p.callbacks.OnTranscription != nil {
		p.callbacks.OnTranscription(text)
	}

	token := p.normalizer.Normalize(result.Task)
	if p.callbacks.OnToken != nil {
		p.callbacks.OnToken(token)
	}
}
