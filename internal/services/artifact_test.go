package services

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/thomasmilici/domux-backend/internal/pkg/hashutil"
	"github.com/thomasmilici/domux-backend/internal/types"
)

func frozenClock() func() time.Time {
	t := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func testBuildInput() BuildInput {
	return BuildInput{
		Items: []types.ComputoItem{
			{ID: 1, CodiceArticolo: "A01.02", Descrizione: "Demolizione muro", UM: "mq", Quantita: 2, PrezzoUnitario: 50, Importo: 100},
		},
		Report: "Demolizione muro",
		User:   types.User{UID: "user-1", DisplayName: "Thomas Milici"},
		View: SessionView{
			ID:          "sess-1",
			UserID:      "user-1",
			ProjectName: "Ristrutturazione bagno Sig. Rossi - 14/03/2026",
			Location:    "Milano",
			Committente: types.Committente{Nome: "Mario", Cognome: "Rossi"},
		},
		Metadata: types.CertificationMetadata{
			UUID:             "3b9aca00-0000-4000-8000-000000000001",
			ReadableID:       "CM-2026-03-14-A1B2",
			Timestamp:        "2026-03-14T10:30:00Z",
			GeneratorVersion: GeneratorVersion,
		},
	}
}

func TestBuildIsDeterministicUnderFrozenClock(t *testing.T) {
	b := NewArtifactBuilder(testLogger(t), NewLetterheadRenderer(testLogger(t)), frozenClock())

	in := testBuildInput()
	first, err := b.Build(in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	second, err := b.Build(in)
	if err != nil {
		t.Fatalf("Build (second): %v", err)
	}
	if hashutil.SumSHA256(first) != hashutil.SumSHA256(second) {
		t.Fatalf("identical inputs under a frozen clock must produce identical bytes")
	}
}

func TestBuildHashChangesWithContent(t *testing.T) {
	b := NewArtifactBuilder(testLogger(t), NewLetterheadRenderer(testLogger(t)), frozenClock())

	base, err := b.Build(testBuildInput())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	edited := testBuildInput()
	edited.Items[0].Importo = 250
	other, err := b.Build(edited)
	if err != nil {
		t.Fatalf("Build (edited): %v", err)
	}

	if hashutil.SumSHA256(base) == hashutil.SumSHA256(other) {
		t.Fatalf("visible content change must change the hash")
	}
}

func TestBuildProducesPDF(t *testing.T) {
	b := NewArtifactBuilder(testLogger(t), NewLetterheadRenderer(testLogger(t)), frozenClock())

	out, err := b.Build(testBuildInput())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Fatalf("output does not start with a PDF header")
	}
}

func TestBuildHandlesManyItemsAcrossPages(t *testing.T) {
	b := NewArtifactBuilder(testLogger(t), NewLetterheadRenderer(testLogger(t)), frozenClock())

	in := testBuildInput()
	in.Items = nil
	for i := 1; i <= 120; i++ {
		in.Items = append(in.Items, types.ComputoItem{
			ID:             i,
			CodiceArticolo: "B07.11",
			Descrizione:    "Fornitura e posa in opera di pavimento in gres porcellanato, inclusi tagli e sfridi",
			UM:             "mq",
			Quantita:       10,
			PrezzoUnitario: 35,
			Importo:        350,
		})
	}
	out, err := b.Build(in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(out) == 0 {
		t.Fatalf("empty artifact")
	}
}

func TestBuildEmbedsPNGAndJPEGImages(t *testing.T) {
	b := NewArtifactBuilder(testLogger(t), NewLetterheadRenderer(testLogger(t)), frozenClock())

	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, image.NewRGBA(image.Rect(0, 0, 40, 30))); err != nil {
		t.Fatalf("encode png fixture: %v", err)
	}
	var jpegBuf bytes.Buffer
	if err := jpeg.Encode(&jpegBuf, image.NewRGBA(image.Rect(0, 0, 40, 30)), nil); err != nil {
		t.Fatalf("encode jpeg fixture: %v", err)
	}

	in := testBuildInput()
	in.BeforeImage = pngBuf.Bytes()
	in.AfterImage = jpegBuf.Bytes()
	out, err := b.Build(in)
	if err != nil {
		t.Fatalf("Build with mixed image formats: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Fatalf("output does not start with a PDF header")
	}
}

func TestSniffImageType(t *testing.T) {
	cases := map[string]string{
		"\x89PNG\r\n\x1a\nrest": "PNG",
		"GIF89a":                "GIF",
		"\xff\xd8\xff\xe0":      "JPEG",
		"unknown bytes":         "JPEG",
	}
	for in, want := range cases {
		if got := sniffImageType([]byte(in)); got != want {
			t.Errorf("sniffImageType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildWithoutLetterheadRenderer(t *testing.T) {
	b := NewArtifactBuilder(testLogger(t), nil, frozenClock())
	if _, err := b.Build(testBuildInput()); err != nil {
		t.Fatalf("Build without letterhead: %v", err)
	}
}

func TestFormatEuro(t *testing.T) {
	cases := map[float64]string{
		0:        "€ 0,00",
		100:      "€ 100,00",
		1234.5:   "€ 1.234,50",
		1234567:  "€ 1.234.567,00",
		-99.99:   "-€ 99,99",
		35 * 120: "€ 4.200,00",
	}
	for in, want := range cases {
		if got := formatEuro(in); got != want {
			t.Errorf("formatEuro(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestNewSessionViewCopies(t *testing.T) {
	s := &types.ProjectSession{
		ID:     "sess-1",
		UserID: "user-1",
		Context: types.SessionContext{
			DescriptionItems: []string{"Demolizione muro"},
			Location:         "Milano",
		},
	}
	view := NewSessionView(s)
	s.Context.DescriptionItems[0] = "mutated"
	if view.DescriptionItems[0] != "Demolizione muro" {
		t.Fatalf("view must be an independent snapshot")
	}
	if !strings.Contains(view.Location, "Milano") {
		t.Fatalf("location not copied")
	}
}
