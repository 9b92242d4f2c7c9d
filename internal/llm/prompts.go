package llm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// contextMarker splits a prompt template into the system instruction (above)
// and the user message (the marker and everything below it).
const contextMarker = "**Article context:**"

var ErrUnknownVariant = errors.New("unknown prompt variant")

// Library holds the prompt templates loaded from a directory of .md files.
// The file name without extension is the variant name.
type Library struct {
	templates map[string]string
}

func LoadLibrary(dir string) (*Library, error) {
	entries, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no prompt templates in %s", dir)
	}

	templates := make(map[string]string, len(entries))
	for _, path := range entries {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		name := strings.TrimSuffix(filepath.Base(path), ".md")
		templates[name] = string(raw)
	}
	return &Library{templates: templates}, nil
}

func (l *Library) Variants() []string {
	names := make([]string, 0, len(l.templates))
	for name := range l.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (l *Library) Has(variant string) bool {
	_, ok := l.templates[variant]
	return ok
}

// Render substitutes {{token}} placeholders and splits the result into
// system and user parts at the article-context marker. Templates without the
// marker become a pure user message.
func (l *Library) Render(variant string, vars map[string]string) (system, user string, err error) {
	tmpl, ok := l.templates[variant]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownVariant, variant)
	}

	rendered := tmpl
	for token, value := range vars {
		rendered = strings.ReplaceAll(rendered, "{{"+token+"}}", value)
	}

	before, after, found := strings.Cut(rendered, contextMarker)
	if !found {
		return "", strings.TrimSpace(rendered), nil
	}
	return strings.TrimSpace(before), strings.TrimSpace(contextMarker + after), nil
}
