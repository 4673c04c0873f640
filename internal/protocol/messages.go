package protocol

// ClientCommand represents a command sent from the UI client to the gateway.
// It intentionally keeps wire-compatible field names with the web frontend.
type ClientCommand struct {
	Type      string    `json:"type"`
	Audio     []float64 `json:"audio,omitempty"`
	AudioPCM  string    `json:"audio_pcm,omitempty"`
	AudioRate int       `json:"audio_sample_rate,omitempty"`
	AudioCh   int       `json:"audio_channels,omitempty"`
	Format    string    `json:"format,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// Client command types.
const (
	CmdLiveConnect    = "live-connect"
	CmdLiveDisconnect = "live-disconnect"
	CmdLiveMute       = "live-mute"
	CmdLiveUnmute     = "live-unmute"
	CmdStreamStart    = "stream-start"
	CmdStreamStop     = "stream-stop"
	CmdMicAudioData   = "mic-audio-data"
	CmdMicAudioEnd    = "mic-audio-end"
	CmdInterrupt      = "interrupt-signal"
	CmdStateRequest   = "state-request"
	CmdHeartbeat      = "heartbeat"
)

// Server message types.
const (
	MsgAssistantText = "assistant-text"
	MsgAudio         = "audio"
	MsgCommandToken  = "command-token"
	MsgTranscription = "transcription"
	MsgState         = "state"
	MsgError         = "error"
	MsgHeartbeatAck  = "heartbeat-ack"
	MsgInterrupted   = "interrupted"
)
