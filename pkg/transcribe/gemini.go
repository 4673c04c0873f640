package transcribe

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"github.com/lumitv/voice-gateway/pkg/audio"
	"github.com/lumitv/voice-gateway/pkg/command"
)

// Transcriber turns one audio chunk plus conversation context into a
// transcription and an identified task.
type Transcriber interface {
	Transcribe(ctx context.Context, chunk audio.Chunk, convContext string) (command.TranscriptionResult, error)
}

// GeminiTranscriber implements Transcriber over the Gemini API with a JSON
// response schema, so the reply parses without prompt-format guesswork.
type GeminiTranscriber struct {
	client *genai.Client
	model  string
}

// NewGeminiTranscriber creates a transcriber for the given API key and model.
func NewGeminiTranscriber(ctx context.Context, apiKey string, model string) (*GeminiTranscriber, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiTranscriber{client: client, model: model}, nil
}

// Transcribe executes one chunk transcription call.
func (g *GeminiTranscriber) Transcribe(ctx context.Context, chunk audio.Chunk, convContext string) (command.TranscriptionResult, error) {
	if len(chunk.Data) == 0 {
		return command.TranscriptionResult{}, errors.New("audio chunk is empty")
	}

	contents := []*genai.Content{
		{Role: genai.RoleUser, Parts: []*genai.Part{
			genai.NewPartFromBytes(chunk.Data, chunk.MIME),
		}},
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{
			{Text: systemInstruction(convContext)},
		}},
		ResponseMIMEType: "application/json",
		ResponseSchema:   transcriptionSchema(),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return command.TranscriptionResult{}, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return command.TranscriptionResult{}, errors.New("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return command.ParseTranscriptionResult([]byte(strings.TrimSpace(sb.String())))
}

func transcriptionSchema() *genai.Schema {
	payloadProps := map[string]*genai.Schema{
		"name":                 {Type: genai.TypeString, Description: "Name of the app to open or food item to order."},
		"app":                  {Type: genai.TypeString, Description: "Name of the app to open."},
		"url":                  {Type: genai.TypeString, Description: "URL for the app to open."},
		"page":                 {Type: genai.TypeString, Description: "Page to navigate to."},
		"duration":             {Type: genai.TypeString, Description: "Duration for a timer."},
		"device":               {Type: genai.TypeString, Description: "Device for environment control."},
		"action":               {Type: genai.TypeString, Description: "Action for environment control."},
		"value":                {Type: genai.TypeString, Description: "Target value for environment control (e.g. a volume level)."},
		"request":              {Type: genai.TypeString, Description: "The specific service request."},
		"search_query":         {Type: genai.TypeString, Description: "Search terms for a content search."},
		"query":                {Type: genai.TypeString, Description: "Free-form query text."},
		"quantity":             {Type: genai.TypeString, Description: "Quantity of items to order (for food orders)."},
		"special_instructions": {Type: genai.TypeString, Description: "Special cooking instructions for food items."},
		"category":             {Type: genai.TypeString, Description: "Food category for navigation."},
		"message":              {Type: genai.TypeString, Description: "User-friendly message to display."},
		"items": {
			Type:        genai.TypeArray,
			Description: "Array of multiple food items to order.",
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":                 {Type: genai.TypeString, Description: "Name of the food item."},
					"quantity":             {Type: genai.TypeString, Description: "Quantity of this item."},
					"special_instructions": {Type: genai.TypeString, Description: "Special instructions for this item."},
				},
			},
		},
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"transcription": {Type: genai.TypeString, Description: "The English transcription of the audio."},
			"task": {
				Type:        genai.TypeObject,
				Description: "The identified command object.",
				Properties: map[string]*genai.Schema{
					"type":    {Type: genai.TypeString, Description: "The category of the command (e.g., 'none', 'openapp', 'timer')."},
					"payload": {Type: genai.TypeObject, Description: "An object containing command-specific details.", Properties: payloadProps},
				},
				Required: []string{"type"},
			},
		},
		Required: []string{"transcription", "task"},
	}
}
