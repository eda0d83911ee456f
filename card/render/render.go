// Package render composites card images: artwork framed on a panel in the type
// colour, with the name, birthday and special ability printed around it.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"

	"github.com/x402cards/paygate/card"
)

// Card dimensions keep the 5:7 trading card ratio.
const (
	Width  = 500
	Height = 700
)

const (
	border  = 14
	margin  = 30
	artTop  = 80
	artW    = Width - 2*margin
	artH    = 300
	textTop = artTop + artH + 24
)

var (
	frameColor = color.NRGBA{R: 0xFF, G: 0xCB, B: 0x05, A: 0xFF}
	artFrame   = color.NRGBA{R: 0xC0, G: 0xC0, B: 0xC8, A: 0xFF}
	panelColor = color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
	inkColor   = color.NRGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xFF}
)

// ErrInvalidArtwork is returned when the artwork cannot be decoded.
var ErrInvalidArtwork = errors.New("invalid artwork")

// Renderer implements card.Renderer. It is safe for concurrent use.
type Renderer struct {
	regular *opentype.Font
	bold    *opentype.Font
}

var _ card.Renderer = (*Renderer)(nil)

// New parses the embedded Go fonts.
func New() (*Renderer, error) {
	regular, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse regular font: %w", err)
	}
	bold, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bold font: %w", err)
	}
	return &Renderer{regular: regular, bold: bold}, nil
}

// faces are per render: opentype faces keep glyph buffers and are not safe
// to share between goroutines.
type faces struct {
	title, heading, body, small font.Face
}

func (r *Renderer) faces() (*faces, error) {
	mk := func(f *opentype.Font, size float64) (font.Face, error) {
		return opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	}
	var fs faces
	var err error
	if fs.title, err = mk(r.bold, 28); err != nil {
		return nil, err
	}
	if fs.heading, err = mk(r.bold, 18); err != nil {
		return nil, err
	}
	if fs.body, err = mk(r.regular, 15); err != nil {
		return nil, err
	}
	if fs.small, err = mk(r.regular, 13); err != nil {
		return nil, err
	}
	return &fs, nil
}

// Render draws the card and encodes it as PNG.
func (r *Renderer) Render(ctx context.Context, d card.Details) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	art, err := imaging.Decode(bytes.NewReader(d.Artwork), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtwork, err)
	}
	fs, err := r.faces()
	if err != nil {
		return nil, fmt.Errorf("failed to load fonts: %w", err)
	}

	typeColor, err := parseHex(d.Type.Color())
	if err != nil {
		return nil, err
	}

	canvas := imaging.New(Width, Height, frameColor)
	canvas = imaging.Paste(canvas, imaging.New(Width-2*border, Height-2*border, typeColor), image.Pt(border, border))

	canvas = imaging.Paste(canvas, imaging.New(artW+8, artH+8, artFrame), image.Pt(margin-4, artTop-4))
	canvas = imaging.Paste(canvas, imaging.Fill(art, artW, artH, imaging.Center, imaging.Lanczos), image.Pt(margin, artTop))

	panelH := Height - border - 16 - textTop
	canvas = imaging.Overlay(canvas, imaging.New(artW, panelH, panelColor), image.Pt(margin, textTop), 0.85)

	// Header.
	typeLabel := strings.ToUpper(string(d.Type))
	typeWidth := font.MeasureString(fs.heading, typeLabel).Ceil()
	nameWidth := artW - typeWidth - 16
	drawText(canvas, fs.title, margin, 58, inkColor, truncate(fs.title, d.Name, nameWidth))
	drawText(canvas, fs.heading, Width-margin-typeWidth, 56, inkColor, typeLabel)

	// Ability panel.
	y := textTop + 28
	if d.Birthday != "" {
		drawText(canvas, fs.small, margin+12, y, inkColor, truncate(fs.small, "Born "+d.Birthday, artW-24))
		y += 30
	}
	drawText(canvas, fs.heading, margin+12, y, typeColor, truncate(fs.heading, d.SpecialAbility, artW-24))
	y += 26
	lineHeight := fs.body.Metrics().Height.Ceil() + 4
	for _, line := range wrap(fs.body, d.SpecialAbilityDescription, artW-24) {
		if y > textTop+panelH-10 {
			break
		}
		drawText(canvas, fs.body, margin+12, y, inkColor, line)
		y += lineHeight
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode card: %w", err)
	}
	return buf.Bytes(), nil
}

func drawText(dst *image.NRGBA, face font.Face, x, y int, c color.Color, s string) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// truncate shortens s with an ellipsis until it fits width pixels.
func truncate(face font.Face, s string, width int) string {
	if font.MeasureString(face, s).Ceil() <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := strings.TrimSpace(string(runes)) + "…"
		if font.MeasureString(face, candidate).Ceil() <= width {
			return candidate
		}
	}
	return ""
}

// wrap breaks s into lines no wider than width pixels. A single word wider than
// width is truncated.
func wrap(face font.Face, s string, width int) []string {
	var lines []string
	var line string
	for _, word := range strings.Fields(s) {
		candidate := word
		if line != "" {
			candidate = line + " " + word
		}
		if font.MeasureString(face, candidate).Ceil() <= width {
			line = candidate
			continue
		}
		if line != "" {
			lines = append(lines, line)
		}
		line = truncate(face, word, width)
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}

func parseHex(s string) (color.NRGBA, error) {
	if len(s) != 7 || s[0] != '#' {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xFF}, nil
}
