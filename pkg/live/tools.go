package live

import (
	"net/url"

	"github.com/lumitv/voice-gateway/pkg/command"
)

// ToolResponse is the reply sent back for a tool invocation. Every
// invocation gets exactly one reply, failures included.
type ToolResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type toolHandler func(args map[string]any) (*command.Token, ToolResponse)

// ToolRegistry maps backend tool invocations to command tokens.
type ToolRegistry struct {
	dispatcher command.Dispatcher
	handlers   map[string]toolHandler
}

// NewToolRegistry creates the registry with the built-in tool set.
func NewToolRegistry(dispatcher command.Dispatcher) *ToolRegistry {
	r := &ToolRegistry{dispatcher: dispatcher}
	r.handlers = map[string]toolHandler{
		"open_youtube":       openAppTool("YouTube", "https://www.youtube.com"),
		"open_netflix":       openAppTool("Netflix", "https://www.netflix.com"),
		"open_plex":          openAppTool("Plex", "https://app.plex.tv"),
		"open_youtube_music": openAppTool("YouTube Music", "https://music.youtube.com"),
		"search_youtube":     searchYouTubeTool(false),
		"play_youtube_video": searchYouTubeTool(true),
	}
	return r
}

// Invoke runs the named tool and returns its reply. Unknown names get a
// failure reply rather than an error so the session stays up.
func (r *ToolRegistry) Invoke(name string, args map[string]any) ToolResponse {
	handler, ok := r.handlers[name]
	if !ok {
		return ToolResponse{Success: false, Message: "Unknown function"}
	}
	token, resp := handler(args)
	if token != nil && r.dispatcher != nil {
		r.dispatcher.Dispatch(*token)
	}
	return resp
}

func openAppTool(app string, appURL string) toolHandler {
	return func(map[string]any) (*command.Token, ToolResponse) {
		token := &command.Token{
			Type: command.TaskOpenApp,
			Payload: command.Payload{
				App:  app,
				URL:  appURL,
				Page: "home",
			},
			Message: "Opening " + app,
		}
		return token, ToolResponse{Success: true, Message: "Opening " + app}
	}
}

func searchYouTubeTool(play bool) toolHandler {
	return func(args map[string]any) (*command.Token, ToolResponse) {
		query, _ := args["query"].(string)
		if query == "" {
			return nil, ToolResponse{Success: false, Message: "Missing query"}
		}

		searchURL := "https://www.youtube.com/results?search_query=" + url.QueryEscape(query)
		message := "Searching YouTube for " + query
		if play {
			message = "Playing " + query + " on YouTube"
		}
		token := &command.Token{
			Type: command.TaskOpenApp,
			Payload: command.Payload{
				App:         "YouTube",
				URL:         searchURL,
				Page:        "search",
				SearchQuery: query,
			},
			Message: message,
		}
		return token, ToolResponse{Success: true, Message: message}
	}
}
