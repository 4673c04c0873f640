package transcribe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lumitv/voice-gateway/pkg/audio"
	"github.com/lumitv/voice-gateway/pkg/command"
)

type fakeTranscriber struct {
	mu       sync.Mutex
	calls    []string
	contexts []string
	results  map[string]command.TranscriptionResult
	errs     map[string]error
	release  chan struct{}
	done     chan string
}

func newFakeTranscriber() *fakeTranscriber {
	return &fakeTranscriber{
		results: map[string]command.TranscriptionResult{},
		errs:    map[string]error{},
		done:    make(chan string, 64),
	}
}

func (f *fakeTranscriber) Transcribe(_ context.Context, chunk audio.Chunk, convContext string) (command.TranscriptionResult, error) {
	id := string(chunk.Data)
	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.contexts = append(f.contexts, convContext)
	release := f.release
	f.mu.Unlock()

	if release != nil {
		<-release
	}
	defer func() { f.done <- id }()

	if err := f.errs[id]; err != nil {
		return command.TranscriptionResult{}, err
	}
	if result, ok := f.results[id]; ok {
		return result, nil
	}
	return command.TranscriptionResult{
		Transcription: "heard " + id,
		Task:          command.Task{Type: "none"},
	}, nil
}

func (f *fakeTranscriber) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for chunk %d of %d", i+1, n)
		}
	}
}

func chunkOf(id string) audio.Chunk {
	return audio.Chunk{Data: []byte(id), MIME: "audio/wav"}
}

func TestPipelineProcessesInArrivalOrder(t *testing.T) {
	ft := newFakeTranscriber()
	ft.release = make(chan struct{})
	p := NewPipeline(ft, nil, Callbacks{}, PipelineConfig{}, nil)

	ctx := context.Background()
	p.Submit(ctx, chunkOf("a"))
	p.Submit(ctx, chunkOf("b"))
	p.Submit(ctx, chunkOf("c"))

	if got := p.QueueLen(); got != 2 {
		t.Fatalf("QueueLen=%d, want 2", got)
	}

	close(ft.release)
	ft.wait(t, 3)

	ft.mu.Lock()
	defer ft.mu.Unlock()
	want := []string{"a", "b", "c"}
	if len(ft.calls) != len(want) {
		t.Fatalf("calls=%v, want %v", ft.calls, want)
	}
	for i := range want {
		if ft.calls[i] != want[i] {
			t.Fatalf("call %d=%q, want %q", i, ft.calls[i], want[i])
		}
	}
}

func TestPipelineAccumulatesContext(t *testing.T) {
	ft := newFakeTranscriber()
	ft.results["a"] = command.TranscriptionResult{Transcription: "open", Task: command.Task{Type: "none"}}
	ft.results["b"] = command.TranscriptionResult{Transcription: "youtube", Task: command.Task{Type: "open_app", Payload: command.Payload{App: "YouTube"}}}
	p := NewPipeline(ft, nil, Callbacks{}, PipelineConfig{}, nil)

	ctx := context.Background()
	p.Submit(ctx, chunkOf("a"))
	ft.wait(t, 1)
	p.Submit(ctx, chunkOf("b"))
	ft.wait(t, 1)

	if got := p.Context(); got != "open youtube" {
		t.Fatalf("Context=%q, want %q", got, "open youtube")
	}

	// The second call must have seen the first segment as context.
	ft.mu.Lock()
	secondCtx := ft.contexts[1]
	ft.mu.Unlock()
	if secondCtx != "open" {
		t.Fatalf("second call context=%q, want %q", secondCtx, "open")
	}

	p.ClearContext()
	if got := p.Context(); got != "" {
		t.Fatalf("Context after clear=%q, want empty", got)
	}
}

func TestPipelineFiltersEmptyTranscription(t *testing.T) {
	ft := newFakeTranscriber()
	ft.results["noise"] = command.TranscriptionResult{Transcription: "  ", Task: command.Task{Type: "none"}}

	var tokens []command.Token
	var texts []string
	var cbMu sync.Mutex
	p := NewPipeline(ft, nil, Callbacks{
		OnTranscription: func(text string) {
			cbMu.Lock()
			texts = append(texts, text)
			cbMu.Unlock()
		},
		OnToken: func(token command.Token) {
			cbMu.Lock()
			tokens = append(tokens, token)
			cbMu.Unlock()
		},
	}, PipelineConfig{}, nil)

	p.Submit(context.Background(), chunkOf("noise"))
	ft.wait(t, 1)

	cbMu.Lock()
	defer cbMu.Unlock()
	if len(texts) != 0 || len(tokens) != 0 {
		t.Fatalf("texts=%v tokens=%v, want none", texts, tokens)
	}
	if got := p.Context(); got != "" {
		t.Fatalf("Context=%q, want empty", got)
	}
}

func TestPipelineEmitsNormalizedToken(t *testing.T) {
	ft := newFakeTranscriber()
	ft.results["a"] = command.TranscriptionResult{
		Transcription: "open netflix",
		Task:          command.Task{Type: "openapp", Payload: command.Payload{App: "Netflix"}},
	}

	tokenCh := make(chan command.Token, 1)
	p := NewPipeline(ft, nil, Callbacks{
		OnToken: func(token command.Token) { tokenCh <- token },
	}, PipelineConfig{}, nil)

	p.Submit(context.Background(), chunkOf("a"))
	ft.wait(t, 1)

	select {
	case token := <-tokenCh:
		if token.Type != command.TaskOpenApp {
			t.Fatalf("type=%q, want open_app", token.Type)
		}
		if token.Payload.URL != "https://www.netflix.com" {
			t.Fatalf("url=%q", token.Payload.URL)
		}
	case <-time.After(time.Second):
		t.Fatal("no token emitted")
	}
}

func TestPipelineSurvivesTranscriberErrors(t *testing.T) {
	ft := newFakeTranscriber()
	ft.errs["bad"] = errors.New("backend unavailable")
	ft.results["good"] = command.TranscriptionResult{Transcription: "hello", Task: command.Task{Type: "none"}}

	errCh := make(chan error, 1)
	p := NewPipeline(ft, nil, Callbacks{
		OnError: func(err error) { errCh <- err },
	}, PipelineConfig{}, nil)

	ctx := context.Background()
	p.Submit(ctx, chunkOf("bad"))
	ft.wait(t, 1)

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected error callback")
		}
	case <-time.After(time.Second):
		t.Fatal("no error reported")
	}

	p.Submit(ctx, chunkOf("good"))
	ft.wait(t, 1)
	if got := p.Context(); got != "hello" {
		t.Fatalf("Context=%q, want %q", got, "hello")
	}
}

func TestPipelineSignalsDrain(t *testing.T) {
	ft := newFakeTranscriber()
	ft.release = make(chan struct{})

	drained := make(chan struct{}, 4)
	p := NewPipeline(ft, nil, Callbacks{
		OnDrain: func() { drained <- struct{}{} },
	}, PipelineConfig{}, nil)

	ctx := context.Background()
	p.Submit(ctx, chunkOf("a"))
	p.Submit(ctx, chunkOf("b"))

	select {
	case <-drained:
		t.Fatal("drain fired while chunks were pending")
	default:
	}

	close(ft.release)
	ft.wait(t, 2)

	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("drain callback never fired")
	}
	if got := p.QueueLen(); got != 0 {
		t.Fatalf("QueueLen=%d, want 0", got)
	}
}

func TestPipelineDropsOldestWhenQueueFull(t *testing.T) {
	ft := newFakeTranscriber()
	ft.release = make(chan struct{})
	p := NewPipeline(ft, nil, Callbacks{}, PipelineConfig{MaxQueued: 2}, nil)

	ctx := context.Background()
	p.Submit(ctx, chunkOf("inflight"))
	for i := 0; i < 4; i++ {
		p.Submit(ctx, chunkOf(fmt.Sprintf("q%d", i)))
	}
	if got := p.QueueLen(); got != 2 {
		t.Fatalf("QueueLen=%d, want 2", got)
	}

	close(ft.release)
	ft.wait(t, 3)

	ft.mu.Lock()
	defer ft.mu.Unlock()
	want := []string{"inflight", "q2", "q3"}
	for i := range want {
		if ft.calls[i] != want[i] {
			t.Fatalf("call %d=%q, want %q", i, ft.calls[i], want[i])
		}
	}
}
