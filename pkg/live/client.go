package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lumitv/voice-gateway/internal/transport/framing"
	"github.com/lumitv/voice-gateway/pkg/audio"
)

var (
	// ErrNotConnected is returned when an operation needs a live link.
	ErrNotConnected = errors.New("live session not connected")
)

// Session is a duplex voice link to the AI backend. One goroutine reads the
// socket and fires callbacks; writers serialize through writeMu. Connect and
// Disconnect are idempotent, and a failed connect leaves the session fully
// disconnected so a later attempt starts clean.
type Session struct {
	cfg       Config
	logger    *zap.Logger
	callbacks Callbacks
	tools     *ToolRegistry

	mu              sync.Mutex
	conn            *websocket.Conn
	sessionID       string
	protocolVersion int
	connected       bool
	ready           bool
	muted           bool

	writeMu sync.Mutex
}

// NewSession creates a live session. It does not connect.
func NewSession(cfg Config, callbacks Callbacks, tools *ToolRegistry, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = normalizeConfig(cfg)
	return &Session{
		cfg:             cfg,
		logger:          logger,
		callbacks:       callbacks,
		tools:           tools,
		protocolVersion: framing.NormalizeVersion(cfg.ProtocolVersion),
	}
}

// Connect dials the backend and completes the setup handshake. Calling it
// while connected is a no-op. A single attempt is made; on failure the
// error is returned and no retry is scheduled.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if s.cfg.BackendURL == "" {
		return errors.New("live backend url is empty")
	}

	s.logger.Info("live connecting",
		zap.String("backend_url", s.cfg.BackendURL),
		zap.String("client_id", s.cfg.ClientID),
		zap.String("model", s.cfg.Model),
	)

	headers := http.Header{}
	headers.Set("Client-Id", s.cfg.ClientID)
	if s.cfg.AccessToken != "" {
		headers.Set("Authorization", "Bearer "+s.cfg.AccessToken)
	}

	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, s.cfg.BackendURL, headers)
	if err != nil {
		s.reportError(err)
		return err
	}
	conn.SetPingHandler(func(appData string) error {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.ready = false
	s.sessionID = ""
	s.mu.Unlock()

	if err := s.sendSetup(ctx); err != nil {
		s.teardown(nil)
		s.reportError(err)
		return err
	}

	go s.readLoop(conn)
	return nil
}

// Disconnect closes the link. Calling it while disconnected is a no-op.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	wasConnected := s.connected
	s.conn = nil
	s.connected = false
	s.ready = false
	s.muted = false
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if wasConnected {
		s.logger.Info("live disconnected", zap.String("session_id", s.SessionID()))
		if s.callbacks.OnDisconnected != nil {
			s.callbacks.OnDisconnected(nil)
		}
	}
}

// Abort asks the backend to stop the in-progress response.
func (s *Session) Abort(ctx context.Context) error {
	return s.sendJSON(ctx, map[string]any{
		"type":   "abort",
		"reason": "user_interrupt",
	})
}

// Mute stops outbound audio. Inbound playback is unaffected.
func (s *Session) Mute() {
	s.mu.Lock()
	s.muted = true
	s.mu.Unlock()
}

// Unmute resumes outbound audio.
func (s *Session) Unmute() {
	s.mu.Lock()
	s.muted = false
	s.mu.Unlock()
}

// State reports the connection and mute flags.
func (s *Session) State() (connected bool, muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected, s.muted
}

// SessionID returns the backend-assigned session identifier.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// SendAudio ships one PCM16 mic frame to the backend. Frames sent while
// muted or before the handshake completes are dropped silently; audio is
// continuous and the next frame will make it.
func (s *Session) SendAudio(ctx context.Context, pcm []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(pcm) == 0 {
		return nil
	}

	s.mu.Lock()
	conn := s.conn
	ready := s.ready
	muted := s.muted
	version := s.protocolVersion
	s.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	if muted || !ready {
		return nil
	}

	frame := framing.Pack(version, pcm)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (s *Session) sendSetup(ctx context.Context) error {
	payload := map[string]any{
		"type":    "setup",
		"version": s.protocolVersion,
		"model":   s.cfg.Model,
		"voice":   s.cfg.Voice,
		"audio_params": map[string]any{
			"format":             "pcm_s16le",
			"input_sample_rate":  s.cfg.InputSampleRate,
			"output_sample_rate": s.cfg.OutputSampleRate,
			"channels":           audio.LiveChannels,
		},
	}
	if s.cfg.SystemPrompt != "" {
		payload["system_instruction"] = s.cfg.SystemPrompt
	}
	return s.sendJSON(ctx, payload)
}

func (s *Session) sendJSON(ctx context.Context, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(payload)
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if s.teardown(conn) {
				s.reportError(err)
				s.logger.Warn("live connection lost", zap.Error(err))
				if s.callbacks.OnDisconnected != nil {
					s.callbacks.OnDisconnected(err)
				}
			}
			return
		}

		switch msgType {
		case websocket.TextMessage:
			s.handleTextMessage(data)
		case websocket.BinaryMessage:
			payload, kind, decodeErr := framing.Decode(s.getProtocolVersion(), data)
			if decodeErr != nil {
				s.reportError(decodeErr)
				continue
			}
			if len(payload) == 0 {
				continue
			}
			if kind == framing.PayloadKindCommand {
				s.handleTextMessage(payload)
				continue
			}
			s.handleAudioPayload(payload)
		}
	}
}

// teardown clears connection state if conn is still current. It reports
// whether this call performed the teardown.
func (s *Session) teardown(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return false
	}
	if conn != nil && s.conn != conn {
		return false
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.conn = nil
	s.connected = false
	s.ready = false
	return true
}

func (s *Session) handleTextMessage(data []byte) {
	var envelope struct {
		Type      string `json:"type"`
		SessionID string `json:"session_id,omitempty"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		s.reportError(err)
		return
	}
	if envelope.SessionID != "" {
		s.setSessionID(envelope.SessionID)
	}

	switch envelope.Type {
	case "ready":
		s.handleReadyMessage(data)
	case "text":
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			s.reportError(err)
			return
		}
		if payload.Text != "" && s.callbacks.OnText != nil {
			s.callbacks.OnText(payload.Text)
		}
	case "audio":
		var payload struct {
			Data       string `json:"data"`
			SampleRate int    `json:"sample_rate,omitempty"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			s.reportError(err)
			return
		}
		raw, err := base64.StdEncoding.DecodeString(payload.Data)
		if err != nil {
			s.reportError(err)
			return
		}
		if payload.SampleRate > 0 {
			s.deliverAudio(raw, payload.SampleRate)
		} else {
			s.handleAudioPayload(raw)
		}
	case "tool_call":
		s.handleToolCall(data)
	case "interrupted":
		if s.callbacks.OnInterrupted != nil {
			s.callbacks.OnInterrupted()
		}
	case "goodbye":
		if s.callbacks.OnGoodbye != nil {
			s.callbacks.OnGoodbye()
		}
	}
}

func (s *Session) handleReadyMessage(data []byte) {
	var payload struct {
		SessionID string `json:"session_id,omitempty"`
		Version   int    `json:"version,omitempty"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		s.reportError(err)
		return
	}
	if payload.SessionID != "" {
		s.setSessionID(payload.SessionID)
	}

	s.mu.Lock()
	if payload.Version > 0 {
		s.protocolVersion = framing.NormalizeVersion(payload.Version)
	}
	first := !s.ready
	s.ready = true
	version := s.protocolVersion
	s.mu.Unlock()

	s.logger.Info("live setup acknowledged",
		zap.String("session_id", s.SessionID()),
		zap.Int("protocol_version", version),
	)
	if first && s.callbacks.OnConnected != nil {
		s.callbacks.OnConnected()
	}
}

func (s *Session) handleAudioPayload(pcm []byte) {
	s.deliverAudio(pcm, s.cfg.OutputSampleRate)
}

func (s *Session) deliverAudio(pcm []byte, sampleRate int) {
	if s.callbacks.OnAudio == nil {
		return
	}
	buf, err := audio.DecodePlayback(pcm, sampleRate, audio.LiveChannels)
	if err != nil {
		s.reportError(err)
		return
	}
	s.callbacks.OnAudio(buf)
}

func (s *Session) handleToolCall(data []byte) {
	var payload struct {
		ID   string         `json:"id"`
		Name string         `json:"name"`
		Args map[string]any `json:"args"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		s.reportError(err)
		return
	}
	if payload.ID == "" {
		s.logger.Warn("tool_call without id", zap.String("tool", payload.Name))
		return
	}

	resp := ToolResponse{Success: false, Message: "Unknown function"}
	if s.tools != nil {
		resp = s.tools.Invoke(payload.Name, payload.Args)
	}
	s.logger.Info("tool invoked",
		zap.String("session_id", s.SessionID()),
		zap.String("tool", payload.Name),
		zap.Bool("success", resp.Success),
	)

	reply := map[string]any{
		"type":     "tool_result",
		"id":       payload.ID,
		"name":     payload.Name,
		"response": resp,
	}
	if err := s.sendJSON(context.Background(), reply); err != nil {
		s.reportError(err)
	}
}

func (s *Session) getProtocolVersion() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocolVersion
}

func (s *Session) setSessionID(id string) {
	s.mu.Lock()
	s.sessionID = id
	s.mu.Unlock()
}

func (s *Session) reportError(err error) {
	if err == nil || s.callbacks.OnError == nil {
		return
	}
	s.callbacks.OnError(err)
}
