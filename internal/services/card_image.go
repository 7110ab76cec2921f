package services

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/HammerMeetNail/livebingo/internal/models"
)

// CardImageOptions controls how a player's card is rendered.
type CardImageOptions struct {
	FreeCenter bool
}

var (
	fontOnce    sync.Once
	regularFont *opentype.Font
	boldFont    *opentype.Font
	fontErr     error
)

var (
	colorBackground = color.RGBA{0xFA, 0xF9, 0xF7, 0xFF}
	colorInk        = color.RGBA{0x2D, 0x2D, 0x2D, 0xFF}
	colorMuted      = color.RGBA{0x6B, 0x6B, 0x6B, 0xFF}
	colorHeader     = color.RGBA{0x1F, 0x3A, 0x5F, 0xFF}
	colorCell       = color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}
	colorCalled     = color.RGBA{0xFF, 0xF1, 0xC2, 0xFF}
	colorMarked     = color.RGBA{0xD7, 0xF3, 0xE3, 0xFF}
	colorMarkedInk  = color.RGBA{0x1B, 0x4D, 0x3E, 0xFF}
	colorBorder     = color.RGBA{0x3A, 0x3A, 0x3A, 0xFF}
)

// RenderCardPNG draws a player's card. Marked cells are green; numbers that
// have been called but not marked are highlighted so the player can catch up.
func RenderCardPNG(player models.PlayerSnapshot, drawn []int, opts CardImageOptions) ([]byte, error) {
	const width = 720
	const height = 860
	const padding = 40
	const captionHeight = 90
	const borderWidth = 2

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: colorBackground}, image.Point{}, draw.Src)

	titleFace, err := newFontFace(boldWeight, 30)
	if err != nil {
		return nil, err
	}
	defer func() { _ = titleFace.Close() }()

	captionFace, err := newFontFace(regularWeight, 18)
	if err != nil {
		return nil, err
	}
	defer func() { _ = captionFace.Close() }()

	letterFace, err := newFontFace(boldWeight, 48)
	if err != nil {
		return nil, err
	}
	defer func() { _ = letterFace.Close() }()

	numberFace, err := newFontFace(boldWeight, 40)
	if err != nil {
		return nil, err
	}
	defer func() { _ = numberFace.Close() }()

	smallFace, err := newFontFace(boldWeight, 22)
	if err != nil {
		return nil, err
	}
	defer func() { _ = smallFace.Close() }()

	called := make(map[int]bool, len(drawn))
	for _, n := range drawn {
		called[n] = true
	}
	marked := make(map[int]bool, len(player.MarkedNumbers))
	for _, n := range player.MarkedNumbers {
		marked[n] = true
	}

	name := clampLines(titleFace, []string{player.Name, ""}, 1, width-padding*2)[0]
	drawText(img, titleFace, padding, 48, name, colorInk)
	drawText(img, captionFace, padding, 76, cardCaption(player, drawn), colorMuted)

	cellSize := (width - padding*2) / models.GridSize
	gridLeft := (width - cellSize*models.GridSize) / 2
	headerTop := captionHeight + padding/2
	gridTop := headerTop + cellSize

	for col := 0; col < models.GridSize; col++ {
		rect := image.Rect(gridLeft+col*cellSize, headerTop, gridLeft+(col+1)*cellSize, headerTop+cellSize)
		draw.Draw(img, rect, &image.Uniform{C: colorHeader}, image.Point{}, draw.Src)
		drawCentered(img, letterFace, rect, models.HeaderText[col:col+1], colorBackground)
	}

	for row := 0; row < models.GridSize; row++ {
		for col := 0; col < models.GridSize; col++ {
			rect := image.Rect(
				gridLeft+col*cellSize,
				gridTop+row*cellSize,
				gridLeft+(col+1)*cellSize,
				gridTop+(row+1)*cellSize,
			)
			n := player.Card[row][col]
			free := opts.FreeCenter && row == models.CenterRow && col == models.CenterCol

			bg, ink := colorCell, colorInk
			switch {
			case free || marked[n]:
				bg, ink = colorMarked, colorMarkedInk
			case called[n]:
				bg = colorCalled
			}

			draw.Draw(img, rect, &image.Uniform{C: bg}, image.Point{}, draw.Src)
			drawBorder(img, rect, borderWidth, colorBorder)
			if free {
				drawCentered(img, smallFace, rect, "FREE", ink)
				continue
			}
			drawCentered(img, numberFace, rect, strconv.Itoa(n), ink)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func cardCaption(player models.PlayerSnapshot, drawn []int) string {
	caption := fmt.Sprintf("%d marked, %d called", len(player.MarkedNumbers), len(drawn))
	if len(drawn) > 0 {
		caption += " - last call " + models.CallName(drawn[len(drawn)-1])
	}
	return caption
}

type fontWeight int

const (
	regularWeight fontWeight = iota
	boldWeight
)

func newFontFace(weight fontWeight, size float64) (*opentype.Face, error) {
	fontOnce.Do(func() {
		regularFont, fontErr = opentype.Parse(goregular.TTF)
		if fontErr != nil {
			return
		}
		boldFont, fontErr = opentype.Parse(gobold.TTF)
	})
	if fontErr != nil {
		return nil, fmt.Errorf("parse font: %w", fontErr)
	}
	f := regularFont
	if weight == boldWeight {
		f = boldFont
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("load font face: %w", err)
	}
	otFace, ok := face.(*opentype.Face)
	if !ok {
		return nil, fmt.Errorf("load font face: unexpected type")
	}
	return otFace, nil
}

func drawText(img draw.Image, face font.Face, x, y int, text string, clr color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(clr),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func drawCentered(img draw.Image, face font.Face, rect image.Rectangle, text string, clr color.Color) {
	metrics := face.Metrics()
	w := font.MeasureString(face, text).Ceil()
	x := rect.Min.X + (rect.Dx()-w)/2
	y := rect.Min.Y + (rect.Dy()-metrics.Height.Ceil())/2 + metrics.Ascent.Ceil()
	drawText(img, face, x, y, text, clr)
}

func drawBorder(img draw.Image, rect image.Rectangle, width int, clr color.Color) {
	border := image.NewUniform(clr)
	draw.Draw(img, image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+width), border, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(rect.Min.X, rect.Max.Y-width, rect.Max.X, rect.Max.Y), border, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+width, rect.Max.Y), border, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(rect.Max.X-width, rect.Min.Y, rect.Max.X, rect.Max.Y), border, image.Point{}, draw.Src)
}

// clampLines keeps at most maxLines lines, cutting the last one to fit
// maxWidth with an ellipsis.
func clampLines(face font.Face, lines []string, maxLines int, maxWidth int) []string {
	if len(lines) <= maxLines {
		return lines
	}
	lines = lines[:maxLines]
	last := lines[maxLines-1]
	const ellipsis = "..."
	d := &font.Drawer{Face: face}
	if d.MeasureString(last).Ceil() <= maxWidth {
		return lines
	}

	runes := []rune(last)
	for d.MeasureString(string(runes)+ellipsis).Ceil() > maxWidth && len(runes) > 0 {
		runes = runes[:len(runes)-1]
	}
	lines[maxLines-1] = string(runes) + ellipsis
	return lines
}
