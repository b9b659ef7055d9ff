package codec

import "errors"

var (
	// ErrUnsupportedFormat reports input that is not a well-formed PNG.
	// It fires before any card parsing is attempted.
	ErrUnsupportedFormat = errors.New("not a PNG file")

	// ErrMissingCardData reports a valid PNG with no chara text chunk.
	ErrMissingCardData = errors.New("no character data in image")

	// ErrCorruptCardData reports a chara chunk whose payload could not be
	// decoded into a card. The pixels may still be fine; the card is not.
	ErrCorruptCardData = errors.New("character data is corrupt")
)
