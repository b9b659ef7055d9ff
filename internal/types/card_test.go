package types

import (
	"encoding/json"
	"testing"
)

func TestUnmarshalRetainsUnknownKeys(t *testing.T) {
	raw := []byte(`{"name":"Aria","chub":{"id":42},"talkativeness":"0.5"}`)

	var data CardData
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if data.Name != "Aria" {
		t.Fatalf("unexpected name: %q", data.Name)
	}
	if len(data.Unknown) != 2 {
		t.Fatalf("expected 2 unknown keys, got %#v", data.Unknown)
	}

	out, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var round map[string]json.RawMessage
	if err := json.Unmarshal(out, &round); err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if string(round["chub"]) != `{"id":42}` {
		t.Fatalf("chub mangled: %s", round["chub"])
	}
	if string(round["talkativeness"]) != `"0.5"` {
		t.Fatalf("talkativeness mangled: %s", round["talkativeness"])
	}
}

func TestUnmarshalDropsScalarListFields(t *testing.T) {
	raw := []byte(`{"name":"Aria","tags":"bard","alternate_greetings":null}`)

	var data CardData
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if data.Tags != nil {
		t.Fatalf("expected scalar tags to be dropped, got %#v", data.Tags)
	}
	if _, ok := data.Unknown["tags"]; ok {
		t.Fatal("dropped tags must not leak into unknown keys")
	}
}

func TestNormalizeRepairsCollections(t *testing.T) {
	card := &CharacterCard{Data: CardData{
		CharacterBook: &CharacterBook{Entries: []BookEntry{{Content: "lore"}}},
	}}
	card.Normalize()

	if card.Spec != SpecV2 || card.SpecVersion != SpecVersionV2 {
		t.Fatalf("expected spec markers, got %q/%q", card.Spec, card.SpecVersion)
	}
	if card.Data.AlternateGreetings == nil || card.Data.Tags == nil || card.Data.Extensions == nil {
		t.Fatalf("expected collections initialized: %#v", card.Data)
	}
	if card.Data.CharacterBook.Entries[0].Keys == nil {
		t.Fatal("expected book entry keys initialized")
	}
}

func TestNewBlankCardMarshalsWithoutNulls(t *testing.T) {
	out, err := json.Marshal(NewBlankCard())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var round map[string]json.RawMessage
	if err := json.Unmarshal(out, &round); err != nil {
		t.Fatalf("reparse: %v", err)
	}
	var data map[string]json.RawMessage
	if err := json.Unmarshal(round["data"], &data); err != nil {
		t.Fatalf("reparse data: %v", err)
	}
	for _, key := range []string{"tags", "alternate_greetings", "extensions"} {
		if string(data[key]) == "null" {
			t.Fatalf("expected %s to marshal non-null", key)
		}
	}
}

func TestFieldValueRoundTrip(t *testing.T) {
	var data CardData
	for _, field := range TextFields() {
		data.SetFieldValue(field, "value of "+string(field))
	}
	for _, field := range TextFields() {
		if got := data.FieldValue(field); got != "value of "+string(field) {
			t.Fatalf("field %s: got %q", field, got)
		}
	}
	if got := data.FieldValue(FieldPortrait); got != "" {
		t.Fatalf("portrait pseudo-field must read empty, got %q", got)
	}
}
