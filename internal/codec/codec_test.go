package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"testing"

	"github.com/candre23/AI-CharCard-Editor/internal/types"
)

func testPNG(t *testing.T, extra ...chunk) []byte {
	t.Helper()
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], 64)
	binary.BigEndian.PutUint32(ihdr[4:8], 96)
	ihdr[8] = 8
	ihdr[9] = 6

	chunks := []chunk{{typ: chunkTypeIHDR, data: ihdr}}
	chunks = append(chunks, extra...)
	chunks = append(chunks,
		chunk{typ: "IDAT", data: []byte{0x78, 0x9c, 0x03, 0x00}},
		chunk{typ: chunkTypeIEND},
	)
	return writeChunks(chunks)
}

func charaChunk(t *testing.T, payload any) chunk {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return textChunk(charaKeyword, base64.StdEncoding.EncodeToString(raw))
}

func TestDecodeMigratesV1Card(t *testing.T) {
	raw := testPNG(t, charaChunk(t, map[string]any{
		"name":        "Aria",
		"description": "A wandering bard",
		"first_mes":   "Well met, traveler.",
	}))

	container, err := Decode(raw)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if container.SourceVersion != types.SchemaV1 {
		t.Fatalf("expected source version v1, got %s", container.SourceVersion)
	}
	card := container.Card
	if card.Spec != types.SpecV2 || card.SpecVersion != types.SpecVersionV2 {
		t.Fatalf("expected v2 wrapper, got %q/%q", card.Spec, card.SpecVersion)
	}
	if card.Data.Name != "Aria" || card.Data.Description != "A wandering bard" {
		t.Fatalf("unexpected card data: %#v", card.Data)
	}
	if card.Data.AlternateGreetings == nil || len(card.Data.AlternateGreetings) != 0 {
		t.Fatalf("expected empty alternate greetings, got %#v", card.Data.AlternateGreetings)
	}
	if card.Data.Extensions == nil {
		t.Fatal("expected non-nil extensions")
	}
	if container.Portrait.Width != 64 || container.Portrait.Height != 96 {
		t.Fatalf("unexpected portrait size: %#v", container.Portrait)
	}
}

func TestDecodeV2Card(t *testing.T) {
	raw := testPNG(t, charaChunk(t, map[string]any{
		"spec":         types.SpecV2,
		"spec_version": types.SpecVersionV2,
		"data": map[string]any{
			"name":     "Aria",
			"scenario": "a roadside tavern",
		},
	}))

	container, err := Decode(raw)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if container.SourceVersion != types.SchemaV2 {
		t.Fatalf("expected source version v2, got %s", container.SourceVersion)
	}
	if container.Card.Data.Scenario != "a roadside tavern" {
		t.Fatalf("unexpected scenario: %q", container.Card.Data.Scenario)
	}
}

func TestDecodeMissingCardData(t *testing.T) {
	if _, err := Decode(testPNG(t)); !errors.Is(err, ErrMissingCardData) {
		t.Fatalf("expected ErrMissingCardData, got %v", err)
	}
}

func TestDecodeRejectsNonPNG(t *testing.T) {
	if _, err := Decode([]byte("GIF89a not a png at all")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestDecodeRejectsBadCRC(t *testing.T) {
	raw := testPNG(t)
	raw[len(raw)-1] ^= 0xff
	if _, err := Decode(raw); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestDecodeRejectsBadBase64(t *testing.T) {
	raw := testPNG(t, textChunk(charaKeyword, "not!base64!!"))
	if _, err := Decode(raw); !errors.Is(err, ErrCorruptCardData) {
		t.Fatalf("expected ErrCorruptCardData, got %v", err)
	}
}

func TestDecodeRejectsNonObjectPayload(t *testing.T) {
	raw := testPNG(t, textChunk(charaKeyword, base64.StdEncoding.EncodeToString([]byte(`[1,2,3]`))))
	if _, err := Decode(raw); !errors.Is(err, ErrCorruptCardData) {
		t.Fatalf("expected ErrCorruptCardData, got %v", err)
	}
}

func TestDecodeFirstCharaChunkWins(t *testing.T) {
	raw := testPNG(t,
		charaChunk(t, map[string]any{"name": "First"}),
		charaChunk(t, map[string]any{"name": "Second"}),
	)

	container, err := Decode(raw)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if container.Card.Data.Name != "First" {
		t.Fatalf("expected first chunk to win, got %q", container.Card.Data.Name)
	}

	// The duplicate must not survive an encode.
	out, err := Encode(container)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	chunks, err := parseChunks(out)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	count := 0
	for _, c := range chunks {
		if keyword, _, ok := textKeyword(c); ok && keyword == charaKeyword {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one chara chunk after encode, got %d", count)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	raw := testPNG(t, charaChunk(t, map[string]any{
		"spec":         types.SpecV2,
		"spec_version": types.SpecVersionV2,
		"data": map[string]any{
			"name":                "Aria",
			"tags":                []string{"bard", "fantasy"},
			"alternate_greetings": []string{"Hail!"},
		},
	}))

	container, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out, err := Encode(container)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	again, err := Decode(out)
	if err != nil {
		t.Fatalf("redecode: %v", err)
	}
	if again.Card.Data.Name != "Aria" || len(again.Card.Data.Tags) != 2 || len(again.Card.Data.AlternateGreetings) != 1 {
		t.Fatalf("round trip lost data: %#v", again.Card.Data)
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	container, err := Decode(testPNG(t, charaChunk(t, map[string]any{
		"name": "Aria",
		"chub": map[string]any{"id": 42},
	})))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	first, err := Encode(container)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	second, err := Encode(container)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("expected identical bytes from repeated encodes")
	}
}

func TestEncodeUpgradesV1ToV2(t *testing.T) {
	container, err := Decode(testPNG(t, charaChunk(t, map[string]any{"name": "Aria"})))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out, err := Encode(container)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	again, err := Decode(out)
	if err != nil {
		t.Fatalf("redecode: %v", err)
	}
	if again.SourceVersion != types.SchemaV2 {
		t.Fatalf("expected rewritten card to be v2, got %s", again.SourceVersion)
	}
}

func TestEncodePreservesUnknownChunks(t *testing.T) {
	timeData := []byte{0x07, 0xe9, 0x08, 0x1a, 0x0c, 0x00, 0x00}
	raw := testPNG(t,
		chunk{typ: "tIME", data: timeData},
		charaChunk(t, map[string]any{"name": "Aria"}),
	)

	container, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out, err := Encode(container)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	chunks, err := parseChunks(out)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	found := false
	for _, c := range chunks {
		if c.typ == "tIME" && bytes.Equal(c.data, timeData) {
			found = true
		}
	}
	if !found {
		t.Fatal("expected tIME chunk to survive the round trip")
	}
}

func TestEncodePreservesUnknownJSONKeys(t *testing.T) {
	container, err := Decode(testPNG(t, charaChunk(t, map[string]any{
		"spec":         types.SpecV2,
		"spec_version": types.SpecVersionV2,
		"data": map[string]any{
			"name":         "Aria",
			"custom_field": map[string]any{"source": "chub", "id": 42},
		},
	})))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	out, err := Encode(container)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	again, err := Decode(out)
	if err != nil {
		t.Fatalf("redecode: %v", err)
	}
	rawCustom, ok := again.Card.Data.Unknown["custom_field"]
	if !ok {
		t.Fatalf("expected custom_field to survive, got %#v", again.Card.Data.Unknown)
	}
	var custom struct {
		Source string `json:"source"`
		ID     int    `json:"id"`
	}
	if err := json.Unmarshal(rawCustom, &custom); err != nil {
		t.Fatalf("unmarshal custom_field: %v", err)
	}
	if custom.Source != "chub" || custom.ID != 42 {
		t.Fatalf("custom_field mangled: %#v", custom)
	}
}

func TestReplacePortraitStripsEmbeddedCard(t *testing.T) {
	container, err := Decode(testPNG(t, charaChunk(t, map[string]any{"name": "Keeper"})))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	replacement := testPNG(t, charaChunk(t, map[string]any{"name": "Intruder"}))
	if err := container.ReplacePortrait(replacement); err != nil {
		t.Fatalf("replace portrait: %v", err)
	}

	out, err := Encode(container)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	again, err := Decode(out)
	if err != nil {
		t.Fatalf("redecode: %v", err)
	}
	if again.Card.Data.Name != "Keeper" {
		t.Fatalf("expected original card to survive, got %q", again.Card.Data.Name)
	}
}

func TestNewContainerRequiresValidPortrait(t *testing.T) {
	if _, err := NewContainer(types.NewBlankCard(), []byte("junk")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if _, err := NewContainer(nil, testPNG(t)); err == nil {
		t.Fatal("expected error for nil card")
	}
}
