package synthetic

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
	"strings"

	"vaultx/internal/domain"
)

// Placeholder artwork is rendered small; it only has to be a valid image.
const baseEdge = 256

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(hasher, "%v", part)
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

func frameSize(aspect domain.AspectRatio) (int, int) {
	parts := strings.Split(string(aspect), ":")
	if len(parts) != 2 {
		return baseEdge, baseEdge
	}
	w, errW := strconv.Atoi(parts[0])
	h, errH := strconv.Atoi(parts[1])
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return baseEdge, baseEdge
	}
	if w >= h {
		return baseEdge * w / h, baseEdge
	}
	return baseEdge, baseEdge * h / w
}

func renderImage(width, height int, seed string) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{colorFromSeed(seed, 0)}, image.Point{}, draw.Src)

	accent := colorFromSeed(seed, 1)
	stripe := max(8, height/12)
	for y := 0; y < height; y += stripe * 2 {
		draw.Draw(img, image.Rect(0, y, width, min(height, y+stripe)), &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	diagonal := colorFromSeed(seed, 2)
	for x := 0; x < max(width, height); x += max(8, width/32) {
		for y := 0; y < height && x+y < width; y++ {
			img.Set(x+y, y, diagonal)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func renderVideo(seed, prompt string) []byte {
	lines := []string{
		"Synthetic video placeholder",
		"Seed: " + seed,
		"Prompt: " + strings.TrimSpace(prompt),
	}
	return []byte(strings.Join(lines, "\n"))
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if len(seed) < 6 {
		seed = "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{R: hexByte(segment[0:2]), G: hexByte(segment[2:4]), B: hexByte(segment[4:6]), A: 255}
}

func hexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}
