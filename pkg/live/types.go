package live

import (
	"github.com/lumitv/voice-gateway/pkg/audio"
)

// Config represents the live backend connection settings.
type Config struct {
	BackendURL       string
	ProtocolVersion  int
	Model            string
	Voice            string
	InputSampleRate  int
	OutputSampleRate int
	ClientID         string
	AccessToken      string
	SystemPrompt     string
}

// Callbacks receive backend events on the read loop goroutine.
type Callbacks struct {
	OnText         func(text string)
	OnAudio        func(buf *audio.Buffer)
	OnInterrupted  func()
	OnGoodbye      func()
	OnConnected    func()
	OnDisconnected func(err error)
	OnError        func(err error)
}

func normalizeConfig(cfg Config) Config {
	if cfg.InputSampleRate <= 0 {
		cfg.InputSampleRate = audio.LiveInputSampleRate
	}
	if cfg.OutputSampleRate <= 0 {
		cfg.OutputSampleRate = audio.LiveOutputSampleRate
	}
	return cfg
}
