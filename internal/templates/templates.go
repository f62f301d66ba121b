// Package templates provides embedded prompt templates with user override support.
// Templates are loaded with resolution order:
// 1. User override: an explicit TOML file path
// 2. Embedded default: internal/templates/{name}.toml
package templates

import (
	"embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/pelletier/go-toml/v2"
)

//go:embed *.toml
var fs embed.FS

// MarketSummary is the built-in summarization prompt
const MarketSummary = "market_summary"

// Template represents a loaded prompt template
type Template struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Prompt      string `toml:"prompt"` // text/template source

	parsed *template.Template
}

// GetTemplate loads a template by name. A non-empty overridePath must exist
// and replaces the embedded default.
func GetTemplate(name string, overridePath string) (*Template, error) {
	if overridePath != "" {
		data, err := os.ReadFile(overridePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read template override %s: %w", overridePath, err)
		}
		return parseTemplate(name, data)
	}

	data, err := fs.ReadFile(name + ".toml")
	if err != nil {
		return nil, fmt.Errorf("template '%s' not found", name)
	}
	return parseTemplate(name, data)
}

// ListEmbeddedTemplates returns names of all embedded templates
func ListEmbeddedTemplates() ([]string, error) {
	entries, err := fs.ReadDir(".")
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".toml") {
			names = append(names, strings.TrimSuffix(entry.Name(), ".toml"))
		}
	}
	return names, nil
}

// Render executes the prompt with data. Unknown fields are errors.
func (t *Template) Render(data interface{}) (string, error) {
	var b strings.Builder
	if err := t.parsed.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render template '%s': %w", t.Name, err)
	}
	return b.String(), nil
}

func parseTemplate(name string, data []byte) (*Template, error) {
	var t Template
	if err := toml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	if strings.TrimSpace(t.Prompt) == "" {
		return nil, fmt.Errorf("template '%s' has an empty prompt", name)
	}
	if t.Name == "" {
		t.Name = name
	}

	parsed, err := template.New(t.Name).Option("missingkey=error").Parse(t.Prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt of template '%s': %w", t.Name, err)
	}
	t.parsed = parsed
	return &t, nil
}
