package ws

import (
	"context"

	"go.uber.org/zap"

	"github.com/lumitv/voice-gateway/internal/protocol"
)

type incomingHandler func(context.Context, protocol.ClientCommand)

func (s *session) dispatchIncoming(ctx context.Context, msg protocol.ClientCommand) {
	handlers := map[string]incomingHandler{
		protocol.CmdLiveConnect:    s.onLiveConnect,
		protocol.CmdLiveDisconnect: s.onLiveDisconnect,
		protocol.CmdLiveMute:       s.onLiveMute,
		protocol.CmdLiveUnmute:     s.onLiveUnmute,
		protocol.CmdStreamStart:    s.onStreamStart,
		protocol.CmdStreamStop:     s.onStreamStop,
		protocol.CmdMicAudioData:   s.onMicAudioData,
		protocol.CmdMicAudioEnd:    s.onMicAudioEnd,
		protocol.CmdInterrupt:      s.onInterruptSignal,
		protocol.CmdStateRequest:   s.onStateRequest,
		protocol.CmdHeartbeat:      s.onHeartbeat,
	}

	if handler, ok := handlers[msg.Type]; ok {
		handler(ctx, msg)
		return
	}
	s.logger.Debug("ws unknown message type",
		zap.String("session_id", s.sessionID),
		zap.String("type", msg.Type),
	)
}

func (s *session) onLiveConnect(ctx context.Context, _ protocol.ClientCommand) {
	s.connectLive(ctx)
}

func (s *session) onLiveDisconnect(_ context.Context, _ protocol.ClientCommand) {
	s.disconnectLive()
}

func (s *session) onLiveMute(_ context.Context, _ protocol.ClientCommand) {
	if s.live != nil {
		s.live.Mute()
	}
	s.machine.SetMuted(true)
}

func (s *session) onLiveUnmute(_ context.Context, _ protocol.ClientCommand) {
	if s.live != nil {
		s.live.Unmute()
	}
	s.machine.SetMuted(false)
}

func (s *session) onStreamStart(_ context.Context, _ protocol.ClientCommand) {
	s.startStream()
}

func (s *session) onStreamStop(ctx context.Context, _ protocol.ClientCommand) {
	s.stopStream(ctx)
}

func (s *session) onMicAudioData(ctx context.Context, msg protocol.ClientCommand) {
	s.handleMicFrame(ctx, msg)
}

func (s *session) onMicAudioEnd(ctx context.Context, _ protocol.ClientCommand) {
	s.handleMicEnd(ctx)
}

func (s *session) onInterruptSignal(ctx context.Context, _ protocol.ClientCommand) {
	s.interrupt(ctx)
}

func (s *session) onStateRequest(_ context.Context, _ protocol.ClientCommand) {
	s.sendState(s.machine.Snapshot())
}

func (s *session) onHeartbeat(_ context.Context, msg protocol.ClientCommand) {
	ack := map[string]any{"type": protocol.MsgHeartbeatAck}
	if msg.RequestID != "" {
		ack["request_id"] = msg.RequestID
	}
	s.sendJSON(ack)
}
