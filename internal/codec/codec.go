// Package codec embeds and extracts character cards in PNG files.
//
// A card travels as base64(UTF-8(JSON)) inside a tEXt chunk keyed "chara".
// Decoding migrates legacy V1 payloads to V2; encoding always writes V2 and
// re-emits every other chunk of the source image untouched, so unknown
// ancillary chunks and the pixel data round-trip byte-for-byte.
package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/candre23/AI-CharCard-Editor/internal/schema"
	"github.com/candre23/AI-CharCard-Editor/internal/types"
)

// CardContainer pairs one decoded card with the PNG it lives in. The chunk
// sequence of the source image is retained so an encode can replay it.
type CardContainer struct {
	Card          *types.CharacterCard
	Portrait      types.PortraitImage
	SourceVersion types.SchemaVersion

	chunks     []chunk
	charaIndex int
}

// NewContainer wraps a card and a portrait PNG into a fresh container.
// The portrait bytes must be a valid PNG; any chara chunk already present
// in them is discarded in favor of the given card.
func NewContainer(card *types.CharacterCard, portraitPNG []byte) (*CardContainer, error) {
	if card == nil {
		return nil, fmt.Errorf("card is required")
	}
	container := &CardContainer{
		Card:          card,
		SourceVersion: types.SchemaV2,
	}
	if err := container.ReplacePortrait(portraitPNG); err != nil {
		return nil, err
	}
	return container, nil
}

// Decode parses PNG bytes into a container. The result is all-or-nothing:
// either a fully formed container or a typed error, never a container with
// a nil card.
func Decode(raw []byte) (*CardContainer, error) {
	chunks, err := parseChunks(raw)
	if err != nil {
		return nil, err
	}

	width, height, bitDepth, colorType, err := parseIHDR(chunks[0])
	if err != nil {
		return nil, err
	}

	charaIndex := -1
	var encoded string
	for i, c := range chunks {
		keyword, value, ok := textKeyword(c)
		if !ok || keyword != charaKeyword {
			continue
		}
		if charaIndex >= 0 {
			// First occurrence wins; the duplicate is a flag for buggy
			// upstream tooling, not something we resolve.
			slog.Warn("duplicate chara chunk ignored", "chunk_index", i)
			continue
		}
		charaIndex = i
		encoded = value
	}
	if charaIndex < 0 {
		return nil, ErrMissingCardData
	}

	card, sourceVersion, err := decodeCardPayload(encoded)
	if err != nil {
		return nil, err
	}

	return &CardContainer{
		Card:          card,
		Portrait:      types.PortraitImage{Width: width, Height: height, BitDepth: bitDepth, ColorType: colorType},
		SourceVersion: sourceVersion,
		chunks:        chunks,
		charaIndex:    charaIndex,
	}, nil
}

// decodeCardPayload turns the chara chunk value into a V2 card, migrating
// V1 payloads along the way.
func decodeCardPayload(encoded string) (*types.CharacterCard, types.SchemaVersion, error) {
	jsonBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: bad base64: %v", ErrCorruptCardData, err)
	}
	if !utf8.Valid(jsonBytes) {
		return nil, 0, fmt.Errorf("%w: payload is not UTF-8", ErrCorruptCardData)
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(jsonBytes, &probe); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCorruptCardData, err)
	}

	version := types.SchemaV1
	if specRaw, ok := probe["spec"]; ok {
		var spec string
		if err := json.Unmarshal(specRaw, &spec); err == nil && spec == types.SpecV2 {
			version = types.SchemaV2
		}
	}

	var decoded any
	if err := json.Unmarshal(jsonBytes, &decoded); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCorruptCardData, err)
	}
	if err := schema.CheckStructure(decoded, version); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCorruptCardData, err)
	}

	if version == types.SchemaV1 {
		var data types.CardData
		if err := json.Unmarshal(jsonBytes, &data); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrCorruptCardData, err)
		}
		return schema.MigrateV1ToV2(data), types.SchemaV1, nil
	}

	var card types.CharacterCard
	if err := json.Unmarshal(jsonBytes, &card); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCorruptCardData, err)
	}
	card.Normalize()
	return &card, types.SchemaV2, nil
}

// Encode serializes the container back to PNG bytes. The card is always
// written as V2, even when the source was V1. Encoding the same container
// twice yields identical bytes.
func Encode(container *CardContainer) ([]byte, error) {
	if container == nil || container.Card == nil {
		return nil, fmt.Errorf("container has no card")
	}
	container.Card.Normalize()

	jsonBytes, err := json.Marshal(container.Card)
	if err != nil {
		return nil, fmt.Errorf("marshal card: %w", err)
	}
	charaChunk := textChunk(charaKeyword, base64.StdEncoding.EncodeToString(jsonBytes))

	out := make([]chunk, 0, len(container.chunks)+1)
	placed := false
	for i, c := range container.chunks {
		if i == container.charaIndex {
			out = append(out, charaChunk)
			placed = true
			continue
		}
		if keyword, _, ok := textKeyword(c); ok && keyword == charaKeyword {
			slog.Warn("dropping duplicate chara chunk on encode", "chunk_index", i)
			continue
		}
		if c.typ == chunkTypeIEND && !placed {
			out = append(out, charaChunk)
			placed = true
		}
		out = append(out, c)
	}
	return writeChunks(out), nil
}

// ReplacePortrait swaps the container's pixels for a new PNG. The previous
// portrait is discarded; the card and its chunk slot are carried over.
func (c *CardContainer) ReplacePortrait(portraitPNG []byte) error {
	chunks, err := parseChunks(portraitPNG)
	if err != nil {
		return err
	}
	width, height, bitDepth, colorType, err := parseIHDR(chunks[0])
	if err != nil {
		return err
	}

	// Strip any embedded card the incoming image carries.
	kept := chunks[:0]
	for _, ch := range chunks {
		if keyword, _, ok := textKeyword(ch); ok && keyword == charaKeyword {
			slog.Warn("discarding chara chunk from replacement portrait")
			continue
		}
		kept = append(kept, ch)
	}

	c.chunks = kept
	c.charaIndex = -1
	c.Portrait = types.PortraitImage{Width: width, Height: height, BitDepth: bitDepth, ColorType: colorType}
	return nil
}
