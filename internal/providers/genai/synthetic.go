package genai

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"

	"photostudio/internal/imagecodec"
)

const syntheticEdge = 512

// renderSyntheticImage draws the first input image (when decodable) under
// seed-colored stripes. The same instruction and inputs always produce the
// same bytes.
func renderSyntheticImage(instruction string, images []string) (string, error) {
	parts := make([]any, 0, len(images)+1)
	parts = append(parts, instruction)
	for _, img := range images {
		parts = append(parts, img)
	}
	seed := deterministicSeed(parts...)

	canvas := image.NewRGBA(image.Rect(0, 0, syntheticEdge, syntheticEdge))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{colorFromSeed(seed, 0)}, image.Point{}, draw.Src)
	if len(images) > 0 {
		if data, _, err := imagecodec.DecodeDataURL(images[0]); err == nil {
			if src, _, err := image.Decode(bytes.NewReader(data)); err == nil {
				draw.Draw(canvas, canvas.Bounds(), src, src.Bounds().Min, draw.Src)
			}
		}
	}

	accent := colorFromSeed(seed, 1)
	accent.A = 96
	stripe := max(16, syntheticEdge/16)
	for y := 0; y < syntheticEdge; y += stripe * 2 {
		band := image.Rect(0, y, syntheticEdge, min(syntheticEdge, y+stripe))
		draw.Draw(canvas, band, &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	diagonal := colorFromSeed(seed, 2)
	for x := 0; x < syntheticEdge; x += max(16, syntheticEdge/32) {
		for y := 0; y < syntheticEdge && x+y < syntheticEdge; y++ {
			canvas.Set(x+y, y, diagonal)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return "", fmt.Errorf("genai: encode synthetic image: %w", err)
	}
	return imagecodec.EncodeDataURL(imagecodec.MIMEPNG, buf.Bytes()), nil
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if seed == "" {
		seed = "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{
		R: parseHexByte(segment[0:2]),
		G: parseHexByte(segment[2:4]),
		B: parseHexByte(segment[4:6]),
		A: 255,
	}
}

func parseHexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(fmt.Sprintf("%v", part)))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}
