// Package prompts holds the versioned LLM prompt templates. Templates are
// embedded at compile time and checked against their declared slots when
// loaded.
package prompts

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"text/template"
)

const (
	Analysis = "analysis"
	Answer   = "answer"
)

//go:embed templates.json
var templatesJSON []byte

var placeholderRe = regexp.MustCompile(`{{\s*\.(\w+)\s*}}`)

type Template struct {
	Name    string
	Version string
	Slots   []string
	tmpl    *template.Template
}

// Set is a validated collection of templates keyed by name.
type Set map[string]*Template

type templateFile map[string]struct {
	Version string   `json:"version"`
	Slots   []string `json:"slots"`
	Text    string   `json:"text"`
}

// Load parses the embedded templates and validates their slots.
func Load() (Set, error) {
	return Parse(templatesJSON)
}

// MustLoad is Load for program start-up, where a broken template is fatal.
func MustLoad() Set {
	set, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load prompts: %v", err))
	}
	return set
}

func Parse(data []byte) (Set, error) {
	var file templateFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse prompt file: %w", err)
	}

	set := make(Set, len(file))
	for name, raw := range file {
		if raw.Version == "" {
			return nil, fmt.Errorf("prompt %q has no version", name)
		}
		if err := checkSlots(name, raw.Text, raw.Slots); err != nil {
			return nil, err
		}
		tmpl, err := template.New(name).Option("missingkey=error").Parse(raw.Text)
		if err != nil {
			return nil, fmt.Errorf("prompt %q: %w", name, err)
		}
		set[name] = &Template{Name: name, Version: raw.Version, Slots: raw.Slots, tmpl: tmpl}
	}
	return set, nil
}

// checkSlots requires the placeholders in text to be exactly the declared slots.
func checkSlots(name, text string, slots []string) error {
	declared := make(map[string]bool, len(slots))
	for _, s := range slots {
		declared[s] = true
	}

	used := make(map[string]bool)
	for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
		if !declared[m[1]] {
			return fmt.Errorf("prompt %q uses undeclared slot %q", name, m[1])
		}
		used[m[1]] = true
	}
	for _, s := range slots {
		if !used[s] {
			return fmt.Errorf("prompt %q never uses slot %q", name, s)
		}
	}
	return nil
}

// Get returns the named template or an error naming what is available.
func (s Set) Get(name string) (*Template, error) {
	t, ok := s[name]
	if !ok {
		names := make([]string, 0, len(s))
		for n := range s {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("prompt %q not found (have %s)", name, strings.Join(names, ", "))
	}
	return t, nil
}

// Render fills every slot. Missing or unknown slot values are errors.
func (t *Template) Render(values map[string]string) (string, error) {
	for _, slot := range t.Slots {
		if _, ok := values[slot]; !ok {
			return "", fmt.Errorf("prompt %s/%s: missing value for slot %q", t.Name, t.Version, slot)
		}
	}
	if len(values) != len(t.Slots) {
		for key := range values {
			if !t.hasSlot(key) {
				return "", fmt.Errorf("prompt %s/%s: unknown slot %q", t.Name, t.Version, key)
			}
		}
	}

	var sb strings.Builder
	if err := t.tmpl.Execute(&sb, values); err != nil {
		return "", fmt.Errorf("prompt %s/%s: %w", t.Name, t.Version, err)
	}
	return sb.String(), nil
}

func (t *Template) hasSlot(name string) bool {
	for _, s := range t.Slots {
		if s == name {
			return true
		}
	}
	return false
}
