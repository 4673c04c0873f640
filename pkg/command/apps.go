package command

import (
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

var defaultAppURLs = map[string]string{
	"Netflix":       "https://www.netflix.com",
	"YouTube":       "https://www.youtube.com",
	"Pluto TV":      "https://pluto.tv",
	"YouTube Music": "https://music.youtube.com",
	"Plex":          "https://www.plex.tv",
	"Disney+":       "https://www.disneyplus.com",
	"Hulu":          "https://www.hulu.com",
	"Prime Video":   "https://www.primevideo.com",
	"HBO Max":       "https://www.hbomax.com",
}

// AppTable resolves spoken app names to destinations.
type AppTable struct {
	urls map[string]string
}

// NewAppTable returns the built-in app destination table.
func NewAppTable() *AppTable {
	urls := make(map[string]string, len(defaultAppURLs))
	for name, u := range defaultAppURLs {
		urls[name] = u
	}
	return &AppTable{urls: urls}
}

// LoadAppTable merges entries from a YAML file over the built-in table.
// The file is a flat name -> url mapping.
func LoadAppTable(path string) (*AppTable, error) {
	table := NewAppTable()
	if path == "" {
		return table, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	overrides := map[string]string{}
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, err
	}
	for name, u := range overrides {
		if name != "" && u != "" {
			table.urls[name] = u
		}
	}
	return table, nil
}

// URL resolves an app name to a destination. Unrecognized names fall back to
// a web search for that name.
func (t *AppTable) URL(name string) string {
	if u, ok := t.urls[name]; ok {
		return u
	}
	return SearchURL(name)
}

// SearchURL builds a generic web search destination for a query.
func SearchURL(query string) string {
	return "https://www.google.com/search?q=" + url.QueryEscape(query)
}
