package command

import "encoding/json"

// TaskType is the command category reported by the speech backend.
type TaskType string

const (
	TaskOpenApp            TaskType = "open_app"
	TaskTimer              TaskType = "timer"
	TaskEnvironmentControl TaskType = "environment_control"
	TaskServiceRequest     TaskType = "service_request"
	TaskNone               TaskType = "none"
)

// OrderItem is one entry of a multi-item food order.
type OrderItem struct {
	Name                string `json:"name,omitempty"`
	Quantity            string `json:"quantity,omitempty"`
	SpecialInstructions string `json:"special_instructions,omitempty"`
}

// Payload carries the command-specific details of a task. The backend fills
// only the fields relevant to the task's type; everything else stays empty.
type Payload struct {
	Name                string      `json:"name,omitempty"`
	App                 string      `json:"app,omitempty"`
	URL                 string      `json:"url,omitempty"`
	Page                string      `json:"page,omitempty"`
	Duration            string      `json:"duration,omitempty"`
	Device              string      `json:"device,omitempty"`
	Action              string      `json:"action,omitempty"`
	Value               string      `json:"value,omitempty"`
	Request             string      `json:"request,omitempty"`
	SearchQuery         string      `json:"search_query,omitempty"`
	Query               string      `json:"query,omitempty"`
	Quantity            string      `json:"quantity,omitempty"`
	SpecialInstructions string      `json:"special_instructions,omitempty"`
	Category            string      `json:"category,omitempty"`
	Message             string      `json:"message,omitempty"`
	Items               []OrderItem `json:"items,omitempty"`
}

// Task is the backend's raw command shape. Type is kept as a plain string so
// unrecognized values survive decoding and fall through to "none" when
// normalized.
type Task struct {
	Type    string  `json:"type"`
	Payload Payload `json:"payload,omitempty"`
}

// TranscriptionResult is one parsed backend response for a single audio unit.
// An empty Transcription means no intelligible speech was heard.
type TranscriptionResult struct {
	Transcription string `json:"transcription"`
	Task          Task   `json:"task"`
}

// Token is the canonical dispatch-ready command. Message is always populated
// so presentation code never needs a fallback of its own.
type Token struct {
	Type    TaskType `json:"type"`
	Payload Payload  `json:"payload"`
	Message string   `json:"message"`
}

// Dispatcher performs the UI/navigation side effect for a token. The core
// never navigates itself; it only invokes this boundary.
type Dispatcher interface {
	Dispatch(token Token)
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(token Token)

// Dispatch executes the dispatch method.
func (f DispatcherFunc) Dispatch(token Token) { f(token) }

// ParseTranscriptionResult decodes and validates a backend response payload.
// Validation happens here, at the parse boundary, so downstream code can rely
// on Transcription being a string and Task.Type being present.
func ParseTranscriptionResult(data []byte) (TranscriptionResult, error) {
	var result TranscriptionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return TranscriptionResult{}, err
	}
	if result.Task.Type == "" {
		return TranscriptionResult{}, errMissingTaskType
	}
	return result, nil
}
