package services

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/thomasmilici/domux-backend/internal/platform/logger"
	"github.com/thomasmilici/domux-backend/internal/types"
)

// GeneratorVersion is stamped into every certified artifact and its metadata.
const GeneratorVersion = "Domux AI v1.5"

// SessionView is the immutable snapshot of a session handed to the build and
// finalization stages. Stages never touch the live session document directly,
// so no reader can observe a pre-commit title or context change.
type SessionView struct {
	ID               string
	UserID           string
	ProjectName      string
	Status           types.SessionStatus
	ProjectType      types.ProjectType
	Region           string
	PreferredStores  []string
	DescriptionItems []string
	Location         string
	Committente      types.Committente
	ParentID         string
}

// NewSessionView copies the fields the pipeline needs out of a live session
// document.
func NewSessionView(s *types.ProjectSession) SessionView {
	return SessionView{
		ID:               s.ID,
		UserID:           s.UserID,
		ProjectName:      s.ProjectName,
		Status:           s.Status,
		ProjectType:      s.ProjectType,
		Region:           s.Region,
		PreferredStores:  append([]string(nil), s.PreferredStores...),
		DescriptionItems: append([]string(nil), s.Context.DescriptionItems...),
		Location:         s.Context.Location,
		Committente:      s.Context.Committente,
		ParentID:         s.ParentID,
	}
}

// BuildInput bundles everything the builder renders. BeforeImage and
// AfterImage are optional JPEG bytes.
type BuildInput struct {
	Items       []types.ComputoItem
	Report      string
	User        types.User
	View        SessionView
	Metadata    types.CertificationMetadata
	BeforeImage []byte
	AfterImage  []byte
}

// ArtifactBuilder renders the certified estimate document. Identical inputs
// under a frozen clock produce identical bytes; the caller hashes the output
// and records the digest in the metadata afterwards.
type ArtifactBuilder interface {
	Build(in BuildInput) ([]byte, error)
}

type artifactBuilder struct {
	log        *logger.Logger
	letterhead LetterheadRenderer
	now        func() time.Time
}

func NewArtifactBuilder(log *logger.Logger, letterhead LetterheadRenderer, now func() time.Time) ArtifactBuilder {
	if now == nil {
		now = time.Now
	}
	return &artifactBuilder{
		log:        log.With("service", "ArtifactBuilder"),
		letterhead: letterhead,
		now:        now,
	}
}

const (
	pageLeft    = 15.0
	pageRight   = 15.0
	pageWidth   = 210.0
	tableBottom = 265.0
)

var itemColWidths = [6]float64{22, 75, 13, 20, 25, 25}

func (ab *artifactBuilder) Build(in BuildInput) ([]byte, error) {
	buildTime := ab.now().UTC()

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(buildTime)
	pdf.SetModificationDate(buildTime)
	pdf.SetTitle(in.View.ProjectName, true)
	pdf.SetAuthor(GeneratorVersion, true)
	pdf.SetMargins(pageLeft, 12, pageRight)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AliasNbPages("")

	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-14)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 6, tr(fmt.Sprintf("%s - Pagina %d/{nb}", in.Metadata.ReadableID, pdf.PageNo())), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()

	// Letterhead header strip
	if ab.letterhead != nil {
		if png, err := ab.letterhead.Render(GeneratorVersion); err != nil {
			ab.log.Warn("letterhead render failed, continuing without it", "error", err)
		} else {
			opts := fpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
			pdf.RegisterImageOptionsReader("letterhead", opts, bytes.NewReader(png))
			pdf.ImageOptions("letterhead", pageLeft, 12, pageWidth-pageLeft-pageRight, 0, false, opts, 0, "")
			pdf.SetY(56)
		}
	}

	// Title block
	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetTextColor(30, 58, 95)
	pdf.MultiCell(0, 8, tr(in.View.ProjectName), "", "L", false)
	pdf.Ln(2)

	ab.infoBlock(pdf, tr, in)

	ab.itemTable(pdf, tr, in.Items)

	ab.reportSection(pdf, tr, in.Report)

	ab.imagePages(pdf, tr, in.BeforeImage, in.AfterImage)

	ab.certificationPage(pdf, tr, in.Metadata, in.User)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render artifact: %w", err)
	}
	return buf.Bytes(), nil
}

func (ab *artifactBuilder) infoBlock(pdf *fpdf.Fpdf, tr func(string) string, in BuildInput) {
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(40, 40, 40)

	c := in.View.Committente
	name := strings.TrimSpace(c.Nome + " " + c.Cognome)
	rows := [][2]string{
		{"Committente", name},
	}
	if c.CodiceFiscale != "" {
		rows = append(rows, [2]string{"Codice fiscale", c.CodiceFiscale})
	}
	if c.Indirizzo != "" {
		rows = append(rows, [2]string{"Indirizzo", c.Indirizzo})
	}
	if in.View.Location != "" {
		rows = append(rows, [2]string{"Località lavori", in.View.Location})
	}
	if in.View.ProjectType == types.ProjectTypePublicWorks {
		label := "Opera pubblica"
		if in.View.Region != "" {
			label += " - prezzario " + in.View.Region
		}
		rows = append(rows, [2]string{"Tipologia", label})
	}

	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(35, 6, tr(row[0]), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 6, tr(row[1]), "", "L", false)
	}
	pdf.Ln(4)
}

func (ab *artifactBuilder) tableHeader(pdf *fpdf.Fpdf, tr func(string) string) {
	headers := [6]string{"Codice", "Descrizione", "U.M.", "Quantità", "Prezzo unit.", "Importo"}
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(30, 58, 95)
	pdf.SetTextColor(255, 255, 255)
	for i, h := range headers {
		align := "L"
		if i >= 3 {
			align = "R"
		}
		pdf.CellFormat(itemColWidths[i], 7, tr(h), "1", 0, align, true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetTextColor(40, 40, 40)
}

func (ab *artifactBuilder) itemTable(pdf *fpdf.Fpdf, tr func(string) string, items []types.ComputoItem) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetTextColor(30, 58, 95)
	pdf.CellFormat(0, 8, tr("Computo metrico estimativo"), "", 1, "L", false, 0, "")
	pdf.Ln(1)

	ab.tableHeader(pdf, tr)

	pdf.SetFont("Helvetica", "", 9)
	for _, it := range items {
		lines := pdf.SplitText(tr(it.Descrizione), itemColWidths[1]-2)
		rowH := 6 * float64(len(lines))
		if rowH < 6 {
			rowH = 6
		}

		if pdf.GetY()+rowH > tableBottom {
			pdf.AddPage()
			ab.tableHeader(pdf, tr)
			pdf.SetFont("Helvetica", "", 9)
		}

		x, y := pdf.GetX(), pdf.GetY()
		pdf.CellFormat(itemColWidths[0], rowH, tr(it.CodiceArticolo), "1", 0, "L", false, 0, "")

		// Description wraps inside its column
		pdf.MultiCell(itemColWidths[1], 6, tr(it.Descrizione), "1", "L", false)
		pdf.SetXY(x+itemColWidths[0]+itemColWidths[1], y)

		pdf.CellFormat(itemColWidths[2], rowH, tr(it.UM), "1", 0, "C", false, 0, "")
		pdf.CellFormat(itemColWidths[3], rowH, formatQuantity(it.Quantita), "1", 0, "R", false, 0, "")
		pdf.CellFormat(itemColWidths[4], rowH, tr(formatEuro(it.PrezzoUnitario)), "1", 0, "R", false, 0, "")
		pdf.CellFormat(itemColWidths[5], rowH, tr(formatEuro(it.Importo)), "1", 0, "R", false, 0, "")
		pdf.SetXY(pageLeft, y+rowH)
	}

	// Grand total: sum of the importo fields exactly as certified.
	total := ItemsTotal(items)
	if pdf.GetY()+8 > tableBottom {
		pdf.AddPage()
	}
	labelW := itemColWidths[0] + itemColWidths[1] + itemColWidths[2] + itemColWidths[3] + itemColWidths[4]
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(labelW, 8, tr("TOTALE"), "1", 0, "R", false, 0, "")
	pdf.CellFormat(itemColWidths[5], 8, tr(formatEuro(total)), "1", 1, "R", false, 0, "")
	pdf.Ln(4)
}

func (ab *artifactBuilder) reportSection(pdf *fpdf.Fpdf, tr func(string) string, report string) {
	if strings.TrimSpace(report) == "" {
		return
	}
	if pdf.GetY()+30 > tableBottom {
		pdf.AddPage()
	}
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetTextColor(30, 58, 95)
	pdf.CellFormat(0, 8, tr("Relazione tecnica"), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(40, 40, 40)
	pdf.SetAutoPageBreak(true, 20)
	pdf.MultiCell(0, 5.5, tr(report), "", "L", false)
	pdf.SetAutoPageBreak(false, 0)
}

func (ab *artifactBuilder) imagePages(pdf *fpdf.Fpdf, tr func(string) string, before, after []byte) {
	addImage := func(name, caption string, data []byte) {
		if len(data) == 0 {
			return
		}
		pdf.AddPage()
		pdf.SetFont("Helvetica", "B", 12)
		pdf.SetTextColor(30, 58, 95)
		pdf.CellFormat(0, 8, tr(caption), "", 1, "L", false, 0, "")
		opts := fpdf.ImageOptions{ImageType: sniffImageType(data), ReadDpi: false}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
		pdf.ImageOptions(name, pageLeft, pdf.GetY()+2, pageWidth-pageLeft-pageRight, 0, false, opts, 0, "")
	}
	addImage("before", "Stato attuale", before)
	addImage("after", "Anteprima intervento", after)
}

// sniffImageType maps image magic bytes onto the embedded-image format name.
// Unknown formats fall back to JPEG, the normalizer's output encoding.
func sniffImageType(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return "PNG"
	case bytes.HasPrefix(data, []byte("GIF8")):
		return "GIF"
	default:
		return "JPEG"
	}
}

func (ab *artifactBuilder) certificationPage(pdf *fpdf.Fpdf, tr func(string) string, meta types.CertificationMetadata, user types.User) {
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetTextColor(30, 58, 95)
	pdf.CellFormat(0, 10, tr("Certificazione del documento"), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	rows := [][2]string{
		{"Identificativo", meta.ReadableID},
		{"UUID", meta.UUID},
		{"Data di generazione", meta.Timestamp},
		{"Generato da", GeneratorVersion},
		{"Intestatario account", user.DisplayName},
		// The digest is computed over the finished bytes and recorded in the
		// external metadata; it cannot appear inside the document it hashes.
		{"Impronta SHA-256", "registrata nei metadati del progetto"},
	}
	if meta.ParentID != "" {
		rows = append(rows, [2]string{"Versione precedente", meta.ParentID})
	}

	pdf.SetTextColor(40, 40, 40)
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(50, 7, tr(row[0]), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 7, tr(row[1]), "", "L", false)
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.SetTextColor(120, 120, 120)
	pdf.MultiCell(0, 5, tr("Documento generato automaticamente. L'integrità del file è verificabile "+
		"confrontando l'impronta SHA-256 dei byte del documento con quella registrata nei metadati."), "", "L", false)
}

func formatQuantity(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	return strings.Replace(s, ".", ",", 1)
}

// formatEuro renders 1234.5 as "€ 1.234,50".
func formatEuro(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := fmt.Sprintf("%.2f", v)
	parts := strings.SplitN(s, ".", 2)
	intPart := parts[0]

	var sb strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			sb.WriteRune('.')
		}
		sb.WriteRune(r)
	}

	out := "€ " + sb.String() + "," + parts[1]
	if neg {
		out = "-" + out
	}
	return out
}
