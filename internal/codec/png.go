package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// pngSignature is the fixed 8-byte file header every PNG starts with.
var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

const (
	chunkTypeIHDR = "IHDR"
	chunkTypeIEND = "IEND"
	chunkTypeTEXT = "tEXt"

	// charaKeyword is the exact, case-sensitive tEXt keyword that carries
	// the embedded card.
	charaKeyword = "chara"
)

// chunk is one raw PNG chunk. CRCs are recomputed on write, so only type
// and payload are kept.
type chunk struct {
	typ  string
	data []byte
}

// parseChunks splits raw PNG bytes into their chunk sequence, verifying
// the signature, per-chunk CRCs, and that the first chunk is IHDR.
func parseChunks(raw []byte) ([]chunk, error) {
	if len(raw) < len(pngSignature) || !bytes.Equal(raw[:len(pngSignature)], pngSignature) {
		return nil, fmt.Errorf("%w: bad signature", ErrUnsupportedFormat)
	}

	var chunks []chunk
	rest := raw[len(pngSignature):]
	for len(rest) > 0 {
		if len(rest) < 12 {
			return nil, fmt.Errorf("%w: truncated chunk header", ErrUnsupportedFormat)
		}
		length := binary.BigEndian.Uint32(rest[:4])
		if uint64(len(rest)) < 12+uint64(length) {
			return nil, fmt.Errorf("%w: truncated chunk data", ErrUnsupportedFormat)
		}
		typ := string(rest[4:8])
		data := rest[8 : 8+length]
		want := binary.BigEndian.Uint32(rest[8+length : 12+length])
		if got := crc32.ChecksumIEEE(rest[4 : 8+length]); got != want {
			return nil, fmt.Errorf("%w: bad CRC in %s chunk", ErrUnsupportedFormat, typ)
		}

		chunks = append(chunks, chunk{typ: typ, data: append([]byte(nil), data...)})
		rest = rest[12+length:]
		if typ == chunkTypeIEND {
			break
		}
	}

	if len(chunks) == 0 || chunks[0].typ != chunkTypeIHDR {
		return nil, fmt.Errorf("%w: missing IHDR", ErrUnsupportedFormat)
	}
	if chunks[len(chunks)-1].typ != chunkTypeIEND {
		return nil, fmt.Errorf("%w: missing IEND", ErrUnsupportedFormat)
	}
	return chunks, nil
}

// writeChunks assembles chunks back into a PNG byte stream, recomputing
// each chunk's CRC per the PNG checksum rule.
func writeChunks(chunks []chunk) []byte {
	var buf bytes.Buffer
	buf.Write(pngSignature)
	for _, c := range chunks {
		var header [8]byte
		binary.BigEndian.PutUint32(header[:4], uint32(len(c.data)))
		copy(header[4:], c.typ)
		buf.Write(header[:])
		buf.Write(c.data)

		crc := crc32.NewIEEE()
		crc.Write([]byte(c.typ))
		crc.Write(c.data)
		var sum [4]byte
		binary.BigEndian.PutUint32(sum[:], crc.Sum32())
		buf.Write(sum[:])
	}
	return buf.Bytes()
}

// textChunk builds a tEXt chunk payload: keyword, NUL, text.
func textChunk(keyword, text string) chunk {
	data := make([]byte, 0, len(keyword)+1+len(text))
	data = append(data, keyword...)
	data = append(data, 0)
	data = append(data, text...)
	return chunk{typ: chunkTypeTEXT, data: data}
}

// textKeyword returns the keyword and value of a tEXt chunk, or ok=false
// when the chunk is not a tEXt chunk or has no keyword terminator.
func textKeyword(c chunk) (keyword, value string, ok bool) {
	if c.typ != chunkTypeTEXT {
		return "", "", false
	}
	i := bytes.IndexByte(c.data, 0)
	if i < 0 {
		return "", "", false
	}
	return string(c.data[:i]), string(c.data[i+1:]), true
}

// parseIHDR extracts the image header fields used for portrait metadata.
func parseIHDR(c chunk) (width, height int, bitDepth, colorType byte, err error) {
	if len(c.data) < 13 {
		return 0, 0, 0, 0, fmt.Errorf("%w: short IHDR", ErrUnsupportedFormat)
	}
	width = int(binary.BigEndian.Uint32(c.data[0:4]))
	height = int(binary.BigEndian.Uint32(c.data[4:8]))
	bitDepth = c.data[8]
	colorType = c.data[9]
	return width, height, bitDepth, colorType, nil
}
