package schema

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/candre23/AI-CharCard-Editor/internal/types"
)

// ParseWorldbook decodes a standalone worldbook file into a CharacterBook.
// It accepts three shapes seen in the wild: a bare book object, a book
// whose entries field is a map keyed by entry id, and a full V2 card that
// carries a character_book. Returns an error when none of those apply.
func ParseWorldbook(raw []byte) (*types.CharacterBook, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("worldbook is not a JSON object: %w", err)
	}

	entriesRaw, hasEntries := probe["entries"]
	if !hasEntries {
		// Maybe a whole card was handed over instead of a book.
		var card types.CharacterCard
		if err := json.Unmarshal(raw, &card); err == nil &&
			card.Spec == types.SpecV2 && card.Data.CharacterBook != nil {
			return card.Data.CharacterBook, nil
		}
		return nil, fmt.Errorf("worldbook has no entries")
	}

	// Entries stored as a map keyed by id are flattened to a list ordered
	// by key, so repeated imports stay stable.
	if len(entriesRaw) > 0 && entriesRaw[0] == '{' {
		var keyed map[string]json.RawMessage
		if err := json.Unmarshal(entriesRaw, &keyed); err != nil {
			return nil, fmt.Errorf("invalid worldbook entries map: %w", err)
		}
		keys := make([]string, 0, len(keyed))
		for k := range keyed {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		list := make([]json.RawMessage, 0, len(keyed))
		for _, k := range keys {
			list = append(list, keyed[k])
		}
		flattened, err := json.Marshal(list)
		if err != nil {
			return nil, err
		}
		probe["entries"] = flattened
		if raw, err = json.Marshal(probe); err != nil {
			return nil, err
		}
	}

	var book types.CharacterBook
	if err := json.Unmarshal(raw, &book); err != nil {
		return nil, fmt.Errorf("invalid worldbook: %w", err)
	}
	for i := range book.Entries {
		if book.Entries[i].Keys == nil {
			book.Entries[i].Keys = []string{}
		}
	}
	return &book, nil
}

// ImportWorldbook merges src into dst and returns dst. Book name and
// description only fill empty slots; entries append; extensions merge with
// src winning on key conflicts, mirroring the original import behavior.
func ImportWorldbook(dst, src *types.CharacterBook) *types.CharacterBook {
	if dst == nil {
		dst = &types.CharacterBook{Entries: []types.BookEntry{}}
	}
	if src == nil {
		return dst
	}

	if dst.Name == "" && src.Name != "" {
		dst.Name = src.Name
	}
	if dst.Description == "" && src.Description != "" {
		dst.Description = src.Description
	}
	dst.Entries = append(dst.Entries, src.Entries...)

	if len(src.Extensions) > 0 {
		if dst.Extensions == nil {
			dst.Extensions = map[string]json.RawMessage{}
		}
		for k, v := range src.Extensions {
			dst.Extensions[k] = v
		}
	}
	return dst
}
