package services

import (
	"bytes"
	"fmt"
	"image/color"
	"os"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"github.com/thomasmilici/domux-backend/internal/platform/logger"
)

const (
	letterheadWidth  = 1000
	letterheadHeight = 220
)

// LetterheadRenderer draws the raster header block stamped on the first page
// of every certified artifact. The output depends only on the generator
// version string, so identical builds embed identical pixels.
type LetterheadRenderer interface {
	Render(generatorVersion string) ([]byte, error)
}

type letterheadRenderer struct {
	log       *logger.Logger
	titleFace font.Face
	smallFace font.Face
}

func NewLetterheadRenderer(log *logger.Logger) LetterheadRenderer {
	serviceLog := log.With("service", "LetterheadRenderer")

	titleFace := font.Face(basicfont.Face7x13)
	smallFace := font.Face(basicfont.Face7x13)

	fontPath := strings.TrimSpace(os.Getenv("LETTERHEAD_FONT"))
	if fontPath != "" {
		tf, err := loadFontFace(fontPath, 64)
		if err != nil {
			serviceLog.Warn("failed to load letterhead font, using builtin face", "font", fontPath, "error", err)
		} else {
			titleFace = tf
			if sf, err := loadFontFace(fontPath, 24); err == nil {
				smallFace = sf
			}
		}
	}

	return &letterheadRenderer{
		log:       serviceLog,
		titleFace: titleFace,
		smallFace: smallFace,
	}
}

func (lr *letterheadRenderer) Render(generatorVersion string) ([]byte, error) {
	dc := gg.NewContext(letterheadWidth, letterheadHeight)

	dc.SetColor(color.White)
	dc.Clear()

	// Brand band
	dc.SetRGB255(30, 58, 95)
	dc.DrawRectangle(0, 0, letterheadWidth, 150)
	dc.Fill()

	dc.SetFontFace(lr.titleFace)
	dc.SetColor(color.White)
	dc.DrawStringAnchored("DOMUX", 40, 75, 0, 0.5)

	dc.SetFontFace(lr.smallFace)
	dc.DrawStringAnchored("Computo Metrico Certificato", 40, 125, 0, 0.5)
	if generatorVersion != "" {
		dc.DrawStringAnchored(generatorVersion, letterheadWidth-40, 125, 1, 0.5)
	}

	// Accent rule under the band
	dc.SetRGB255(212, 160, 23)
	dc.DrawRectangle(0, 150, letterheadWidth, 8)
	dc.Fill()

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode letterhead PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func loadFontFace(fontPath string, size float64) (font.Face, error) {
	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	parsedFont, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", err)
	}
	return truetype.NewFace(parsedFont, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	}), nil
}
