package editor

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

const (
	blankPortraitWidth  = 512
	blankPortraitHeight = 768
)

// blankPortraitPNG renders the neutral placeholder used by new cards
// until a real portrait is set or generated.
func blankPortraitPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, blankPortraitWidth, blankPortraitHeight))
	fill := color.RGBA{R: 0x2a, G: 0x2a, B: 0x33, A: 0xff}
	for y := 0; y < blankPortraitHeight; y++ {
		for x := 0; x < blankPortraitWidth; x++ {
			img.SetRGBA(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		// Encoding an in-memory RGBA image cannot fail.
		panic(err)
	}
	return buf.Bytes()
}
