package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Match kinds for reply templates.
const (
	MatchContains = "contains"
	MatchExact    = "exact"
)

// ReplyTemplate maps an inbound message pattern to a canned reply.
type ReplyTemplate struct {
	Name     string `yaml:"name"`
	Match    string `yaml:"match"` // "contains" or "exact"
	Value    string `yaml:"value"`
	Reply    string `yaml:"reply"`
	Disabled bool   `yaml:"disabled,omitempty"`
}

// ReplyTemplates is an ordered template list; the first active match wins.
type ReplyTemplates struct {
	Templates []ReplyTemplate `yaml:"templates"`
}

// LoadTemplates reads and validates a YAML template file.
func LoadTemplates(path string) (*ReplyTemplates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}

	var t ReplyTemplates
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	for i, tpl := range t.Templates {
		if tpl.Match != MatchContains && tpl.Match != MatchExact {
			return nil, fmt.Errorf("template %d (%q): unknown match kind %q", i, tpl.Name, tpl.Match)
		}
		if tpl.Value == "" {
			return nil, fmt.Errorf("template %d (%q): empty match value", i, tpl.Name)
		}
		if tpl.Reply == "" {
			return nil, fmt.Errorf("template %d (%q): empty reply", i, tpl.Name)
		}
	}
	return &t, nil
}

// Resolve returns the reply text for an inbound message. Matching is
// case-insensitive. If no template matches (or t is nil), fallback is returned.
func (t *ReplyTemplates) Resolve(text, fallback string) string {
	if t == nil {
		return fallback
	}
	lower := strings.ToLower(text)
	for _, tpl := range t.Templates {
		if tpl.Disabled {
			continue
		}
		value := strings.ToLower(tpl.Value)
		switch tpl.Match {
		case MatchContains:
			if strings.Contains(lower, value) {
				return tpl.Reply
			}
		case MatchExact:
			if strings.TrimSpace(lower) == value {
				return tpl.Reply
			}
		}
	}
	return fallback
}
