package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	appconfig "github.com/lumitv/voice-gateway/internal/config"
	"github.com/lumitv/voice-gateway/internal/protocol"
	"github.com/lumitv/voice-gateway/internal/session/fsm"
	"github.com/lumitv/voice-gateway/pkg/audio"
	"github.com/lumitv/voice-gateway/pkg/command"
	"github.com/lumitv/voice-gateway/pkg/live"
	"github.com/lumitv/voice-gateway/pkg/transcribe"
)

// Handler represents a handler.
type Handler struct {
	logger      *zap.Logger
	upgrader    websocket.Upgrader
	config      appconfig.Config
	transcriber transcribe.Transcriber
	apps        *command.AppTable
	sessions    map[string]*session
	mu          sync.Mutex
}

type session struct {
	conn   *websocket.Conn
	sendMu sync.Mutex
	logger *zap.Logger

	handler   *Handler
	sessionID string
	machine   *fsm.Machine

	live      *live.Session
	scheduler *live.Scheduler

	pipeline      *transcribe.Pipeline
	recorder      *audio.Recorder
	resampler     *audio.StreamResampler
	resamplerRate int
	opusDecoder   *audio.OpusDecoder
	chunkInterval time.Duration
}

// NewHandler executes the newHandler function. A nil transcriber disables
// the streaming transcription path.
func NewHandler(logger *zap.Logger, cfg appconfig.Config, transcriber transcribe.Transcriber, apps *command.AppTable) *Handler {
	if apps == nil {
		apps = command.NewAppTable()
	}
	return &Handler{
		logger:      logger,
		config:      cfg,
		transcriber: transcriber,
		apps:        apps,
		sessions:    make(map[string]*session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Handle executes the handle method.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := &session{
		conn:          conn,
		logger:        h.logger,
		handler:       h,
		sessionID:     uuid.NewString(),
		machine:       fsm.New(),
		recorder:      audio.NewRecorder(audio.LiveInputSampleRate, audio.LiveChannels),
		chunkInterval: time.Duration(h.config.ChunkIntervalMs) * time.Millisecond,
	}
	sess.machine.SetObserver(func(snap fsm.Snapshot) {
		sess.sendState(snap)
	})
	if h.transcriber != nil {
		sess.pipeline = transcribe.NewPipeline(
			h.transcriber,
			command.NewNormalizer(h.apps),
			transcribe.Callbacks{
				OnTranscription: func(text string) {
					sess.sendJSON(map[string]any{"type": protocol.MsgTranscription, "text": text})
				},
				OnToken: func(token command.Token) {
					sess.Dispatch(token)
				},
				OnError: func(err error) {
					sess.sendError(err.Error())
				},
				OnDrain: func() {
					sess.machine.SetProcessing(false)
					// Context resets once the stopped stream finishes
					// processing. A stream already running again keeps
					// its own accumulation.
					if sess.machine.State() != fsm.StateStreaming {
						sess.pipeline.ClearContext()
					}
				},
			},
			transcribe.PipelineConfig{MaxQueued: h.config.MaxQueuedChunks},
			h.logger,
		)
	}

	sess.logger.Info("ws session opened",
		zap.String("session_id", sess.sessionID),
		zap.String("mic_format", h.config.MicFormat),
		zap.Int("mic_sample_rate", h.config.MicSampleRate),
		zap.Int("chunk_interval_ms", h.config.ChunkIntervalMs),
	)

	h.registerSession(sess)
	sess.sendState(sess.machine.Snapshot())

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			sess.logger.Debug("ws connection closed", zap.Error(err))
			break
		}
		var msg protocol.ClientCommand
		if err := json.Unmarshal(data, &msg); err != nil {
			sess.sendError("invalid json")
			continue
		}
		if msg.Type != protocol.CmdHeartbeat && msg.Type != protocol.CmdMicAudioData {
			sess.logger.Debug("ws incoming message",
				zap.String("session_id", sess.sessionID),
				zap.String("type", msg.Type),
			)
		}
		sess.dispatchIncoming(ctx, msg)
	}

	sess.shutdown()
	sess.logger.Info("ws session closed", zap.String("session_id", sess.sessionID))
	h.unregisterSession(sess.sessionID)
}

func (s *session) shutdown() {
	if s.scheduler != nil {
		s.scheduler.Interrupt()
	}
	if s.live != nil {
		s.live.Disconnect()
	}
	if s.resampler != nil {
		s.resampler.Close()
		s.resampler = nil
	}
}

// Dispatch forwards a command token to the UI client.
func (s *session) Dispatch(token command.Token) {
	s.logger.Info("command token",
		zap.String("session_id", s.sessionID),
		zap.String("task_type", string(token.Type)),
	)
	s.sendJSON(map[string]any{"type": protocol.MsgCommandToken, "token": token})
}

func (s *session) connectLive(ctx context.Context) {
	if err := s.machine.OnConnectStart(); err != nil {
		s.sendError(err.Error())
		return
	}

	s.scheduler = live.NewScheduler(newPlaybackSink(s))
	tools := live.NewToolRegistry(s)
	cfg := live.Config{
		BackendURL:       s.handler.config.LiveBackendURL,
		ProtocolVersion:  s.handler.config.LiveProtocolVersion,
		Model:            s.handler.config.LiveModel,
		Voice:            s.handler.config.LiveVoice,
		InputSampleRate:  audio.LiveInputSampleRate,
		OutputSampleRate: audio.LiveOutputSampleRate,
		ClientID:         fallbackID(s.handler.config.LiveClientID, "vgw-client-"+s.sessionID),
		AccessToken:      s.handler.config.LiveAccessToken,
		SystemPrompt:     s.handler.config.LiveSystemPrompt,
	}

	callbacks := live.Callbacks{
		OnText: func(text string) {
			s.sendJSON(map[string]any{"type": protocol.MsgAssistantText, "text": text})
		},
		OnAudio: func(buf *audio.Buffer) {
			s.scheduler.Enqueue(buf)
		},
		OnInterrupted: func() {
			s.scheduler.Interrupt()
			s.sendJSON(map[string]any{"type": protocol.MsgInterrupted})
		},
		OnGoodbye: func() {
			s.sendError("live backend closed the session")
			s.live.Disconnect()
		},
		OnConnected: func() {
			if err := s.machine.OnConnected(); err != nil {
				s.logger.Warn("live ready in unexpected state", zap.Error(err))
			}
		},
		OnDisconnected: func(err error) {
			s.scheduler.Interrupt()
			s.machine.OnDisconnected()
		},
		OnError: func(err error) {
			s.logger.Warn("live session error",
				zap.String("session_id", s.sessionID),
				zap.Error(err),
			)
		},
	}

	s.live = live.NewSession(cfg, callbacks, tools, s.logger)
	if err := s.live.Connect(ctx); err != nil {
		if ferr := s.machine.OnConnectFailed(); ferr != nil {
			s.logger.Warn("connect rollback failed", zap.Error(ferr))
		}
		s.sendError(err.Error())
	}
}

func (s *session) disconnectLive() {
	if s.live == nil {
		return
	}
	s.live.Disconnect()
	s.machine.OnDisconnected()
}

func (s *session) startStream() {
	if s.pipeline == nil {
		s.sendError("transcription is not configured")
		return
	}
	if err := s.machine.OnStreamStart(); err != nil {
		s.sendError(err.Error())
		return
	}
	// A new utterance session starts from a clean slate.
	s.pipeline.ClearContext()
	s.recorder.Reset()
}

func (s *session) stopStream(ctx context.Context) {
	// Flush before leaving the streaming state, or the resampler tail
	// would miss the final chunk.
	if s.machine.State() == fsm.StateStreaming {
		s.flushResampler()
	}
	if err := s.machine.OnStreamStop(); err != nil {
		s.sendError(err.Error())
		return
	}
	if !s.cutChunk(ctx) && !s.machine.Snapshot().Processing {
		s.pipeline.ClearContext()
	}
}

func (s *session) handleMicFrame(ctx context.Context, msg protocol.ClientCommand) {
	pcm, rate := s.decodeMicFrame(msg)
	if len(pcm) == 0 {
		return
	}

	switch s.machine.State() {
	case fsm.StateLive:
		if err := s.live.SendAudio(ctx, s.toLiveRate(pcm, rate)); err != nil {
			s.logger.Warn("live send audio failed", zap.Error(err))
			s.sendError(err.Error())
		}
	case fsm.StateStreaming:
		s.recorder.Write(s.toLiveRate(pcm, rate))
		if s.recorder.Elapsed() >= s.chunkInterval {
			s.cutChunk(ctx)
		}
	default:
		s.logger.Debug("mic audio dropped while idle",
			zap.String("session_id", s.sessionID),
		)
	}
}

func (s *session) handleMicEnd(ctx context.Context) {
	if s.machine.State() != fsm.StateStreaming {
		return
	}
	s.flushResampler()
	s.cutChunk(ctx)
}

// decodeMicFrame returns a mono PCM16 frame and its sample rate. Frames
// arrive either as base64 PCM16, base64 opus, or a raw float sample array;
// multi-channel input is folded down before further processing.
func (s *session) decodeMicFrame(msg protocol.ClientCommand) ([]byte, int) {
	rate := msg.AudioRate
	if rate <= 0 {
		rate = s.handler.config.MicSampleRate
	}
	channels := msg.AudioCh
	if channels <= 0 {
		channels = 1
	}

	if msg.AudioPCM != "" {
		raw, err := base64.StdEncoding.DecodeString(msg.AudioPCM)
		if err != nil {
			s.sendError("invalid mic audio encoding")
			return nil, 0
		}
		format := msg.Format
		if format == "" {
			format = s.handler.config.MicFormat
		}
		if format == "opus" {
			pcm, err := s.decodeOpusFrame(raw, rate, channels)
			if err != nil {
				s.logger.Warn("opus decode failed", zap.Error(err))
				s.sendError(err.Error())
				return nil, 0
			}
			return audio.DownmixPCM16(pcm, channels), rate
		}
		return audio.DownmixPCM16(raw, channels), rate
	}

	if len(msg.Audio) > 0 {
		pcm := audio.EncodePCM16(audio.Float64ToFloat32Slice(msg.Audio))
		return audio.DownmixPCM16(pcm, channels), rate
	}
	return nil, 0
}

func (s *session) decodeOpusFrame(frame []byte, rate int, channels int) ([]byte, error) {
	if s.opusDecoder == nil {
		dec, err := audio.NewOpusDecoder(rate, channels)
		if err != nil {
			return nil, err
		}
		s.opusDecoder = dec
	}
	return s.opusDecoder.Decode(frame)
}

// toLiveRate converts a mic-rate PCM16 frame to the 16 kHz live rate.
func (s *session) toLiveRate(pcm []byte, rate int) []byte {
	if rate == audio.LiveInputSampleRate {
		return pcm
	}
	if s.resampler == nil || s.resamplerRate != rate {
		if s.resampler != nil {
			s.resampler.Close()
		}
		r, err := audio.NewStreamResampler(rate, audio.LiveInputSampleRate)
		if err != nil {
			s.logger.Warn("resampler init failed", zap.Error(err))
			return nil
		}
		s.resampler = r
		s.resamplerRate = rate
	}
	if err := s.resampler.AppendPCM(audio.BytesToInt16(pcm)); err != nil {
		s.logger.Warn("resample failed", zap.Error(err))
		return nil
	}
	return s.resampler.Drain()
}

func (s *session) flushResampler() {
	if s.resampler == nil {
		return
	}
	if err := s.resampler.Flush(); err != nil {
		s.logger.Warn("resampler flush failed", zap.Error(err))
		return
	}
	if tail := s.resampler.Drain(); len(tail) > 0 && s.machine.State() == fsm.StateStreaming {
		s.recorder.Write(tail)
	}
}

func (s *session) cutChunk(ctx context.Context) bool {
	chunk, ok := s.recorder.Cut()
	if !ok {
		return false
	}
	s.logger.Debug("transcription chunk cut",
		zap.String("session_id", s.sessionID),
		zap.Int("bytes", len(chunk.Data)),
	)
	s.machine.SetProcessing(true)
	s.pipeline.Submit(ctx, chunk)
	return true
}

func (s *session) interrupt(ctx context.Context) {
	if s.scheduler != nil {
		s.scheduler.Interrupt()
	}
	if s.live != nil {
		if connected, _ := s.live.State(); connected {
			if err := s.live.Abort(ctx); err != nil {
				s.logger.Warn("live abort failed", zap.Error(err))
			}
		}
	}
	s.sendJSON(map[string]any{"type": protocol.MsgInterrupted})
}

func (s *session) sendState(snap fsm.Snapshot) {
	s.sendJSON(map[string]any{
		"type":       protocol.MsgState,
		"state":      snap.State,
		"muted":      snap.Muted,
		"processing": snap.Processing,
	})
}

func (s *session) sendError(message string) {
	s.sendJSON(map[string]any{"type": protocol.MsgError, "message": message})
}

func (s *session) sendJSON(payload any) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.conn.WriteJSON(payload); err != nil {
		s.logger.Debug("ws send failed", zap.Error(err))
	}
}

func (h *Handler) registerSession(sess *session) {
	h.mu.Lock()
	h.sessions[sess.sessionID] = sess
	h.mu.Unlock()
}

func (h *Handler) unregisterSession(sessionID string) {
	h.mu.Lock()
	delete(h.sessions, sessionID)
	h.mu.Unlock()
}

func fallbackID(value string, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
