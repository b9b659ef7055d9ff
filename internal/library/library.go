// Package library enumerates card files on disk for pickers and
// gallery views.
package library

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/candre23/AI-CharCard-Editor/internal/codec"
)

// Entry describes one card file found during a scan.
type Entry struct {
	Path    string
	Name    string
	Creator string
	Tags    []string
	ModTime time.Time
	HasCard bool
}

// Scan walks dir non-recursively and returns an entry for every PNG in
// it. Files that are valid PNGs but carry no card data are listed with
// HasCard false so the UI can offer them as portrait sources. Unreadable
// or non-PNG files are skipped with a log line.
func Scan(dir string) ([]Entry, error) {
	infos, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, info := range infos {
		if info.IsDir() || !strings.EqualFold(filepath.Ext(info.Name()), ".png") {
			continue
		}
		path := filepath.Join(dir, info.Name())
		entry, err := inspect(path, info)
		if err != nil {
			slog.Warn("skipping unreadable card file", "path", path, "error", err)
			continue
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Path < entries[j].Path
	})
	return entries, nil
}

func inspect(path string, info fs.DirEntry) (Entry, error) {
	fi, err := info.Info()
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{Path: path, ModTime: fi.ModTime()}

	container, err := codec.LoadFile(path)
	if err != nil {
		if errors.Is(err, codec.ErrMissingCardData) {
			return entry, nil
		}
		return Entry{}, err
	}
	entry.HasCard = true
	entry.Name = container.Card.Data.Name
	entry.Creator = container.Card.Data.Creator
	entry.Tags = append(entry.Tags, container.Card.Data.Tags...)
	return entry, nil
}
