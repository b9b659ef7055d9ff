package codec

import (
	"fmt"
	"os"
	"path/filepath"
)

// LoadFile reads and decodes a card file from disk.
func LoadFile(path string) (*CardContainer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read card file: %w", err)
	}
	container, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return container, nil
}

// SaveFile encodes the container and replaces the file at path atomically:
// the bytes land in a temp file in the same directory first, then rename
// swaps it in. A failed write never corrupts an existing card.
func SaveFile(container *CardContainer, path string) error {
	encoded, err := Encode(container)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".card-*.png.tmp")
	if err != nil {
		return fmt.Errorf("create temp card file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp card file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp card file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace card file: %w", err)
	}
	return nil
}
