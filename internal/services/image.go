package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	_ "image/png"

	"golang.org/x/image/draw"

	"github.com/thomasmilici/domux-backend/internal/pkg/apperr"
	"github.com/thomasmilici/domux-backend/internal/platform/logger"
)

const (
	maxImageBytes = 20 * 1024 * 1024
	maxDimension  = 1920
	jpegQuality   = 85
)

// NormalizedImage is the bounded, re-encoded form of an uploaded photo, ready
// for storage upload and for inlining into an AI request.
type NormalizedImage struct {
	Bytes    []byte
	Base64   string
	MimeType string
	FileName string
	Width    int
	Height   int
	ModTime  time.Time
}

type ImageService interface {
	Normalize(ctx context.Context, raw []byte, filename string) (*NormalizedImage, error)
}

type imageService struct {
	log *logger.Logger
	now func() time.Time
}

func NewImageService(log *logger.Logger) ImageService {
	return &imageService{
		log: log.With("service", "ImageService"),
		now: time.Now,
	}
}

func (is *imageService) Normalize(ctx context.Context, raw []byte, filename string) (*NormalizedImage, error) {
	if len(raw) == 0 {
		return nil, apperr.Validation("impossibile leggere il file immagine")
	}
	// Size check happens before any decode attempt.
	if len(raw) > maxImageBytes {
		sizeMB := float64(len(raw)) / (1024 * 1024)
		return nil, apperr.Validation(fmt.Sprintf("l'immagine è troppo grande (%.1fMB). La dimensione massima è 20MB.", sizeMB))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, apperr.Upstream("image_decode", "impossibile decodificare l'immagine", err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, apperr.Upstream("image_decode", "l'immagine ha dimensioni non valide", nil)
	}

	newW, newH := boundDimensions(w, h, maxDimension)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	if newW == w && newH == h {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, apperr.Upstream("image_encode", "impossibile ricodificare l'immagine", err)
	}

	encoded := out.Bytes()
	is.log.Debug("Image normalized",
		"file", filename,
		"in_bytes", len(raw),
		"out_bytes", len(encoded),
		"width", newW,
		"height", newH,
	)

	return &NormalizedImage{
		Bytes:    encoded,
		Base64:   base64.StdEncoding.EncodeToString(encoded),
		MimeType: "image/jpeg",
		FileName: filename,
		Width:    newW,
		Height:   newH,
		ModTime:  is.now(),
	}, nil
}

// boundDimensions scales (w, h) so the longer side is at most limit, keeping
// aspect ratio with nearest-integer rounding. Never upscales.
func boundDimensions(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		scaled := int(float64(h)*float64(limit)/float64(w) + 0.5)
		if scaled < 1 {
			scaled = 1
		}
		return limit, scaled
	}
	scaled := int(float64(w)*float64(limit)/float64(h) + 0.5)
	if scaled < 1 {
		scaled = 1
	}
	return scaled, limit
}
