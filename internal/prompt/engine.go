// Package prompt renders the per-instruct-format generation templates.
//
// A GenerationTemplate is an ordered list of slots, each targeting one card
// field. Slot bodies are text/template strings whose placeholders resolve
// against, in order of precedence: caller overrides, draft values generated
// by earlier slots in the same job, and existing card fields. Unknown
// placeholders render as empty strings so a sparse card never aborts a run.
package prompt

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/template"

	"github.com/candre23/AI-CharCard-Editor/internal/types"
)

// ErrUnknownTemplate reports a lookup for an instruct format nobody
// registered. Picking a wrong wrapper silently would corrupt every prompt
// sent to the backend, so this is a hard failure.
var ErrUnknownTemplate = errors.New("unknown instruct format")

// Slot is one named, independently generated step of a template.
type Slot struct {
	// Field is the card field this slot populates. FieldPortrait routes
	// the rendered prompt to the image backend instead.
	Field types.Field
	// Body is the text/template source for the slot prompt.
	Body string

	tmpl *template.Template
}

// GenerationTemplate is the full staged recipe for one instruct format.
type GenerationTemplate struct {
	Format string
	Slots  []Slot
}

var (
	registryMu sync.RWMutex
	registry   = map[string]*GenerationTemplate{}
)

// macroFuncs lets slot bodies spell the {{char}} and {{user}} card macros
// literally; they render back as themselves so the model sees the macro.
var macroFuncs = template.FuncMap{
	"char": func() string { return "{{char}}" },
	"user": func() string { return "{{user}}" },
}

// Register compiles and stores a template under its format id, replacing
// any previous registration.
func Register(t *GenerationTemplate) error {
	for i := range t.Slots {
		tmpl, err := template.New(fmt.Sprintf("%s/%s", t.Format, t.Slots[i].Field)).
			Funcs(macroFuncs).
			Option("missingkey=zero").
			Parse(t.Slots[i].Body)
		if err != nil {
			return fmt.Errorf("parse slot %s of format %s: %w", t.Slots[i].Field, t.Format, err)
		}
		t.Slots[i].tmpl = tmpl
	}
	registryMu.Lock()
	registry[t.Format] = t
	registryMu.Unlock()
	return nil
}

func mustRegister(t *GenerationTemplate) {
	if err := Register(t); err != nil {
		panic(err)
	}
}

// Lookup returns the template for an instruct format id.
func Lookup(format string) (*GenerationTemplate, error) {
	registryMu.RLock()
	t, ok := registry[format]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, format)
	}
	return t, nil
}

// Formats lists the registered instruct format ids, sorted.
func Formats() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	formats := make([]string, 0, len(registry))
	for f := range registry {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	return formats
}

// RenderSlot renders one slot against the card and the draft values
// accumulated so far. Overrides win over draft values, draft values win
// over card fields, and anything unresolved becomes the empty string.
func (t *GenerationTemplate) RenderSlot(index int, card *types.CardData, draft map[types.Field]string, overrides map[string]string) (string, error) {
	if index < 0 || index >= len(t.Slots) {
		return "", fmt.Errorf("slot index %d out of range for format %s", index, t.Format)
	}
	slot := t.Slots[index]

	data := map[string]string{}
	charName := card.Name
	if name, ok := draft[types.FieldName]; ok && name != "" {
		charName = name
	}
	for _, field := range types.TextFields() {
		data[string(field)] = ReplaceMacros(card.FieldValue(field), charName, "user")
	}
	for field, value := range draft {
		data[string(field)] = ReplaceMacros(value, charName, "user")
	}
	for key, value := range overrides {
		data[key] = value
	}

	var buf bytes.Buffer
	if err := slot.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render slot %s of format %s: %w", slot.Field, t.Format, err)
	}
	return buf.String(), nil
}

// ReplaceMacros substitutes the {{char}} and {{user}} card macros, the
// convention card text uses to stay name-agnostic.
func ReplaceMacros(text, charName, userName string) string {
	replaced := strings.ReplaceAll(text, "{{char}}", charName)
	return strings.ReplaceAll(replaced, "{{user}}", userName)
}
