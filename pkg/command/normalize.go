package command

import (
	"errors"
	"strings"
)

var errMissingTaskType = errors.New("transcription result is missing task type")

const noCommandMessage = "No command recognized"

// Normalizer maps raw backend tasks into canonical tokens.
type Normalizer struct {
	apps *AppTable
}

// NewNormalizer creates a normalizer backed by the given app table. A nil
// table uses the built-in destinations.
func NewNormalizer(apps *AppTable) *Normalizer {
	if apps == nil {
		apps = NewAppTable()
	}
	return &Normalizer{apps: apps}
}

// Normalize converts a raw task into a dispatch-ready token. It is total:
// every input, however malformed, yields a valid token with a non-empty
// message. Unrecognized task types normalize to "none".
func (n *Normalizer) Normalize(task Task) Token {
	switch strings.ToLower(strings.TrimSpace(task.Type)) {
	case "open_app", "openapp", "openpage":
		return n.normalizeOpenApp(task.Payload)
	case "service_request":
		return withDefaultMessage(Token{
			Type:    TaskServiceRequest,
			Payload: task.Payload,
		}, "Processing your request")
	case "timer":
		return withDefaultMessage(Token{
			Type:    TaskTimer,
			Payload: task.Payload,
		}, "Setting timer for "+task.Payload.Duration)
	case "environment_control":
		return withDefaultMessage(Token{
			Type:    TaskEnvironmentControl,
			Payload: task.Payload,
		}, environmentMessage(task.Payload))
	default:
		return Token{
			Type:    TaskNone,
			Payload: Payload{},
			Message: noCommandMessage,
		}
	}
}

func (n *Normalizer) normalizeOpenApp(payload Payload) Token {
	app := payload.App
	if app == "" {
		app = payload.Name
	}
	page := payload.Page
	if page == "" {
		page = "home"
	}

	out := Payload{
		Page: page,
		App:  app,
	}
	if app != "" {
		out.Name = app
		out.URL = n.apps.URL(app)
	}

	message := payload.Message
	if message == "" {
		target := app
		if target == "" {
			target = page
		}
		message = "Opening " + target
	}

	return Token{
		Type:    TaskOpenApp,
		Payload: out,
		Message: message,
	}
}

func environmentMessage(payload Payload) string {
	if payload.Device == "" || payload.Action == "" {
		return "Controlling environment"
	}
	message := "Setting " + payload.Device + " " + payload.Action
	if payload.Value != "" {
		message += " to " + payload.Value
	}
	return message
}

func withDefaultMessage(token Token, fallback string) Token {
	token.Message = token.Payload.Message
	if token.Message == "" {
		token.Message = fallback
	}
	if strings.TrimSpace(token.Message) == "" {
		token.Message = noCommandMessage
	}
	return token
}
