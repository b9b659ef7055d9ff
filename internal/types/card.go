// Package types defines the character card data model shared across the
// editor core: the V2 card schema, the legacy V1 shape, and the portrait
// metadata carried alongside the card inside its PNG container.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	// SpecV2 is the spec marker of a chara_card_v2 wrapper object.
	SpecV2 = "chara_card_v2"
	// SpecVersionV2 is the version string written with SpecV2.
	SpecVersionV2 = "2.0"
)

// SchemaVersion identifies which card schema a file carried on disk.
type SchemaVersion int

const (
	// SchemaV1 is the legacy bare-object card schema.
	SchemaV1 SchemaVersion = iota + 1
	// SchemaV2 is the current chara_card_v2 wrapper schema.
	SchemaV2
)

func (v SchemaVersion) String() string {
	switch v {
	case SchemaV1:
		return "v1"
	case SchemaV2:
		return "v2"
	default:
		return fmt.Sprintf("schema(%d)", int(v))
	}
}

// CharacterCard is a V2 card: the spec marker plus the data payload.
type CharacterCard struct {
	Spec        string   `json:"spec"`
	SpecVersion string   `json:"spec_version"`
	Data        CardData `json:"data"`
}

// CardData holds the persona fields of a card. Unknown keys found in the
// data object are retained verbatim so that saving never drops anything a
// newer tool wrote.
type CardData struct {
	Name                    string `json:"name"`
	Description             string `json:"description"`
	Personality             string `json:"personality"`
	Scenario                string `json:"scenario"`
	FirstMes                string `json:"first_mes"`
	MesExample              string `json:"mes_example"`
	CreatorNotes            string `json:"creator_notes"`
	SystemPrompt            string `json:"system_prompt"`
	PostHistoryInstructions string `json:"post_history_instructions"`

	AlternateGreetings []string `json:"alternate_greetings"`
	Tags               []string `json:"tags"`
	Creator            string   `json:"creator"`
	CharacterVersion   string   `json:"character_version"`

	CharacterBook *CharacterBook `json:"character_book,omitempty"`

	// Extensions is an opaque pass-through map. Entries round-trip
	// byte-for-byte even when unrecognized.
	Extensions map[string]json.RawMessage `json:"extensions"`

	// Unknown carries any data-object keys this tool does not model.
	Unknown map[string]json.RawMessage `json:"-"`
}

// CharacterBook is the optional embedded worldbook of a V2 card.
type CharacterBook struct {
	Name              string                     `json:"name,omitempty"`
	Description       string                     `json:"description,omitempty"`
	ScanDepth         *int                       `json:"scan_depth,omitempty"`
	TokenBudget       *int                       `json:"token_budget,omitempty"`
	RecursiveScanning *bool                      `json:"recursive_scanning,omitempty"`
	Entries           []BookEntry                `json:"entries"`
	Extensions        map[string]json.RawMessage `json:"extensions,omitempty"`
}

// BookEntry is one keyed lore entry of a character book. Tristate fields
// are pointers so that an undefined value is omitted rather than written
// as false.
type BookEntry struct {
	Keys           []string                   `json:"keys"`
	Content        string                     `json:"content"`
	Enabled        bool                       `json:"enabled"`
	InsertionOrder float64                    `json:"insertion_order"`
	CaseSensitive  *bool                      `json:"case_sensitive,omitempty"`
	Name           string                     `json:"name,omitempty"`
	Comment        string                     `json:"comment,omitempty"`
	Priority       *float64                   `json:"priority,omitempty"`
	Selective      *bool                      `json:"selective,omitempty"`
	SecondaryKeys  []string                   `json:"secondary_keys,omitempty"`
	Constant       *bool                      `json:"constant,omitempty"`
	Position       string                     `json:"position,omitempty"`
	Extensions     map[string]json.RawMessage `json:"extensions,omitempty"`
}

// PortraitImage describes the visible pixels of a card file. The pixel
// data itself stays inside the container's PNG chunks; this is the decoded
// header metadata.
type PortraitImage struct {
	Width     int
	Height    int
	BitDepth  byte
	ColorType byte
}

// NewBlankCard returns an empty V2 card with all collection fields
// initialized, matching the scaffold a freshly created file is saved with.
func NewBlankCard() *CharacterCard {
	return &CharacterCard{
		Spec:        SpecV2,
		SpecVersion: SpecVersionV2,
		Data: CardData{
			AlternateGreetings: []string{},
			Tags:               []string{},
			Extensions:         map[string]json.RawMessage{},
		},
	}
}

// Normalize repairs collection fields so that a card always marshals with
// arrays and objects rather than nulls.
func (c *CharacterCard) Normalize() {
	if c.Spec == "" {
		c.Spec = SpecV2
	}
	if c.SpecVersion == "" {
		c.SpecVersion = SpecVersionV2
	}
	if c.Data.AlternateGreetings == nil {
		c.Data.AlternateGreetings = []string{}
	}
	if c.Data.Tags == nil {
		c.Data.Tags = []string{}
	}
	if c.Data.Extensions == nil {
		c.Data.Extensions = map[string]json.RawMessage{}
	}
	if book := c.Data.CharacterBook; book != nil {
		if book.Entries == nil {
			book.Entries = []BookEntry{}
		}
		for i := range book.Entries {
			if book.Entries[i].Keys == nil {
				book.Entries[i].Keys = []string{}
			}
		}
	}
}

// cardDataAlias strips CardData's methods so the stock JSON machinery can
// handle the known fields.
type cardDataAlias CardData

// knownDataKeys lists every key the typed struct models; anything else in
// a data object lands in Unknown.
var knownDataKeys = []string{
	"name", "description", "personality", "scenario", "first_mes",
	"mes_example", "creator_notes", "system_prompt",
	"post_history_instructions", "alternate_greetings", "tags", "creator",
	"character_version", "character_book", "extensions",
}

// listKeys are keys that must decode as JSON arrays. Some exporters write
// scalars here; those values are dropped rather than coerced.
var listKeys = []string{"tags", "alternate_greetings"}

func (d *CardData) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for _, key := range listKeys {
		if v, ok := raw[key]; ok && !isJSONArray(v) {
			delete(raw, key)
		}
	}

	clean, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	var known cardDataAlias
	if err := json.Unmarshal(clean, &known); err != nil {
		return err
	}
	*d = CardData(known)

	for _, key := range knownDataKeys {
		delete(raw, key)
	}
	if len(raw) > 0 {
		d.Unknown = raw
	} else {
		d.Unknown = nil
	}
	return nil
}

func (d CardData) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(cardDataAlias(d))
	if err != nil {
		return nil, err
	}
	if len(d.Unknown) == 0 {
		return known, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for key, value := range d.Unknown {
		merged[key] = value
	}
	return json.Marshal(merged)
}

func isJSONArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}
