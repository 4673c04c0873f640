package ws

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	appconfig "github.com/lumitv/voice-gateway/internal/config"
	"github.com/lumitv/voice-gateway/internal/session/fsm"
	"github.com/lumitv/voice-gateway/pkg/audio"
	"github.com/lumitv/voice-gateway/pkg/command"
	"github.com/lumitv/voice-gateway/pkg/transcribe"
)

// stubTranscriber records the conversation context of each call and returns
// a fixed transcription.
type stubTranscriber struct {
	mu       sync.Mutex
	contexts []string
	chunks   chan audio.Chunk
}

func newStubTranscriber() *stubTranscriber {
	return &stubTranscriber{chunks: make(chan audio.Chunk, 8)}
}

func (s *stubTranscriber) Transcribe(_ context.Context, chunk audio.Chunk, convContext string) (command.TranscriptionResult, error) {
	s.mu.Lock()
	s.contexts = append(s.contexts, convContext)
	s.mu.Unlock()
	s.chunks <- chunk
	return command.TranscriptionResult{
		Transcription: "hello",
		Task:          command.Task{Type: "none"},
	}, nil
}

func (s *stubTranscriber) contextAt(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.contexts) {
		return "<missing>"
	}
	return s.contexts[i]
}

func dialGateway(t *testing.T, tr transcribe.Transcriber) *websocket.Conn {
	t.Helper()
	h := NewHandler(zap.NewNop(), appconfig.Config{
		MicSampleRate:   audio.LiveInputSampleRate,
		MicFormat:       "pcm",
		ChunkIntervalMs: 60000,
	}, tr, nil)
	srv := httptest.NewServer(http.HandlerFunc(h.Handle))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil drains server messages until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %q: %v", msgType, err)
		}
		if msg["type"] == msgType {
			return msg
		}
	}
}

func micFrame(samples int) string {
	return base64.StdEncoding.EncodeToString(make([]byte, samples*2))
}

func TestHeartbeatAckEchoesRequestID(t *testing.T) {
	conn := dialGateway(t, nil)

	if err := conn.WriteJSON(map[string]any{"type": "heartbeat", "request_id": "hb-7"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	ack := readUntil(t, conn, "heartbeat-ack")
	if ack["request_id"] != "hb-7" {
		t.Fatalf("request_id=%v, want hb-7", ack["request_id"])
	}
}

func TestStreamStopResetsContext(t *testing.T) {
	tr := newStubTranscriber()
	conn := dialGateway(t, tr)

	runStream := func() {
		t.Helper()
		if err := conn.WriteJSON(map[string]any{"type": "stream-start"}); err != nil {
			t.Fatalf("stream-start: %v", err)
		}
		frame := map[string]any{"type": "mic-audio-data", "audio_pcm": micFrame(1600)}
		if err := conn.WriteJSON(frame); err != nil {
			t.Fatalf("mic frame: %v", err)
		}
		if err := conn.WriteJSON(map[string]any{"type": "stream-stop"}); err != nil {
			t.Fatalf("stream-stop: %v", err)
		}
		readUntil(t, conn, "transcription")
		// Processing drops back once the stopped stream drains; the context
		// reset rides the same drain.
		for {
			state := readUntil(t, conn, "state")
			if state["processing"] == false {
				return
			}
		}
	}

	runStream()
	runStream()

	if got := tr.contextAt(0); got != "" {
		t.Fatalf("first context=%q, want empty", got)
	}
	if got := tr.contextAt(1); got != "" {
		t.Fatalf("context after stop=%q, want empty", got)
	}
}

func newStreamingSession(t *testing.T, tr transcribe.Transcriber) *session {
	t.Helper()
	h := &Handler{
		logger: zap.NewNop(),
		config: appconfig.Config{MicSampleRate: 48000, MicFormat: "pcm", ChunkIntervalMs: 60000},
	}
	s := &session{
		logger:        zap.NewNop(),
		handler:       h,
		sessionID:     "test",
		machine:       fsm.New(),
		recorder:      audio.NewRecorder(audio.LiveInputSampleRate, audio.LiveChannels),
		chunkInterval: time.Minute,
	}
	s.pipeline = transcribe.NewPipeline(tr, nil, transcribe.Callbacks{}, transcribe.PipelineConfig{}, nil)
	if err := s.machine.OnStreamStart(); err != nil {
		t.Fatalf("OnStreamStart: %v", err)
	}
	return s
}

func TestStopStreamIncludesResamplerTail(t *testing.T) {
	tr := newStubTranscriber()
	s := newStreamingSession(t, tr)

	// 100 ms of 48 kHz mono PCM16 pushed through the resampling path.
	frame := make([]byte, 9600)
	for i := 0; i < len(frame); i += 2 {
		frame[i] = byte(i)
	}
	s.recorder.Write(s.toLiveRate(frame, 48000))

	drained := s.recorder.Pending()
	if drained == 0 {
		t.Fatal("no resampled audio reached the recorder")
	}

	s.stopStream(context.Background())
	if got := s.machine.State(); got != fsm.StateIdle {
		t.Fatalf("state=%s, want idle", got)
	}

	var chunk audio.Chunk
	select {
	case chunk = <-tr.chunks:
	case <-time.After(2 * time.Second):
		t.Fatal("no chunk submitted on stop")
	}

	pcm, rate, _, err := audio.DecodeWAV(chunk.Data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != audio.LiveInputSampleRate {
		t.Fatalf("rate=%d, want %d", rate, audio.LiveInputSampleRate)
	}
	if len(pcm) <= drained {
		t.Fatalf("chunk pcm=%d bytes, want resampler tail beyond the %d already drained", len(pcm), drained)
	}
}
