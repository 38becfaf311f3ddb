package types

import "time"

type SessionStatus string

const (
	SessionStatusOpen   SessionStatus = "open"
	SessionStatusPaused SessionStatus = "paused"
	SessionStatusClosed SessionStatus = "closed"
)

type ProjectType string

const (
	ProjectTypePublicWorks     ProjectType = "public_works"
	ProjectTypePrivateEstimate ProjectType = "private_estimate"
)

// User is the acting identity extracted from a verified Firebase ID token.
type User struct {
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Committente is the customer commissioning the work.
type Committente struct {
	Nome          string `json:"nome" firestore:"nome,omitempty"`
	Cognome       string `json:"cognome" firestore:"cognome,omitempty"`
	CodiceFiscale string `json:"codiceFiscale" firestore:"codiceFiscale,omitempty"`
	Indirizzo     string `json:"indirizzo" firestore:"indirizzo,omitempty"`
}

type SessionContext struct {
	DescriptionItems []string    `json:"descriptionItems" firestore:"descriptionItems"`
	Location         string      `json:"location" firestore:"location,omitempty"`
	Committente      Committente `json:"committente" firestore:"committente,omitempty"`
}

// ProjectSession is an in-progress, editable estimate-gathering workflow
// instance, stored in the projectSessions collection. GeneratedProjectID is
// set if and only if Status is closed.
type ProjectSession struct {
	ID                 string         `json:"id" firestore:"-"`
	UserID             string         `json:"userId" firestore:"userId"`
	ProjectName        string         `json:"projectName" firestore:"projectName,omitempty"`
	CreatedAt          time.Time      `json:"createdAt" firestore:"createdAt,serverTimestamp"`
	UpdatedAt          time.Time      `json:"updatedAt" firestore:"updatedAt,serverTimestamp"`
	Status             SessionStatus  `json:"status" firestore:"status"`
	ProjectType        ProjectType    `json:"projectType,omitempty" firestore:"projectType,omitempty"`
	Region             string         `json:"region,omitempty" firestore:"region,omitempty"`
	PreferredStores    []string       `json:"preferredStores,omitempty" firestore:"preferredStores,omitempty"`
	Context            SessionContext `json:"context" firestore:"context"`
	ParentID           string         `json:"parentId,omitempty" firestore:"parentId,omitempty"`
	GeneratedProjectID string         `json:"generatedProjectId,omitempty" firestore:"generatedProjectId,omitempty"`
	ErrorLog           string         `json:"errorLog,omitempty" firestore:"errorLog,omitempty"`
}

// ComputoItem is a single estimate line. Importo is trusted as provided and
// never silently recomputed once the user has approved the draft.
type ComputoItem struct {
	ID             int     `json:"id" firestore:"id"`
	CodiceArticolo string  `json:"codice_articolo" firestore:"codice_articolo"`
	Descrizione    string  `json:"descrizione" firestore:"descrizione"`
	UM             string  `json:"um" firestore:"um"`
	Quantita       float64 `json:"quantita" firestore:"quantita"`
	PrezzoUnitario float64 `json:"prezzo_unitario" firestore:"prezzo_unitario"`
	Importo        float64 `json:"importo" firestore:"importo"`
}

// GroundingSource is a web source surfaced by AI search grounding.
type GroundingSource struct {
	URI   string `json:"uri" firestore:"uri"`
	Title string `json:"title" firestore:"title"`
}

// CertificationMetadata is the content-addressed provenance record embedded in
// every certified artifact. Hash is always the SHA-256 of the exact artifact
// bytes being persisted; any rebuild recomputes it.
type CertificationMetadata struct {
	UUID             string `json:"uuid" firestore:"uuid"`
	ReadableID       string `json:"readableId" firestore:"readableId"`
	Hash             string `json:"hash" firestore:"hash"`
	Timestamp        string `json:"timestamp" firestore:"timestamp"`
	GeneratorVersion string `json:"generatorVersion" firestore:"generatorVersion"`
	ParentID         string `json:"parentId,omitempty" firestore:"parentId,omitempty"`
}

// EstimateResult is the persisted portion of a generation outcome.
type EstimateResult struct {
	ComputoItems []ComputoItem     `json:"computoItems" firestore:"computoItems"`
	ReportText   string            `json:"reportText" firestore:"reportText"`
	Sources      []GroundingSource `json:"sources" firestore:"sources"`
}

// Project is the immutable certified record written once per successful
// finalization. Image URL fields are omitted entirely when no image exists.
type Project struct {
	ID                string                `json:"id" firestore:"-"`
	UserID            string                `json:"userId" firestore:"userId"`
	CreatedAt         time.Time             `json:"createdAt" firestore:"createdAt,serverTimestamp"`
	UserInput         string                `json:"userInput" firestore:"userInput"`
	ProjectName       string                `json:"projectName" firestore:"projectName"`
	Location          string                `json:"location,omitempty" firestore:"location,omitempty"`
	Committente       Committente           `json:"committente" firestore:"committente"`
	IsRenovation      bool                  `json:"isRenovation" firestore:"isRenovation"`
	Result            EstimateResult        `json:"result" firestore:"result"`
	PDFDownloadURL    string                `json:"pdfDownloadUrl" firestore:"pdfDownloadUrl"`
	Metadata          CertificationMetadata `json:"metadata" firestore:"metadata"`
	OriginalImageURL  string                `json:"originalImageUrl,omitempty" firestore:"originalImageUrl,omitempty"`
	GeneratedImageURL string                `json:"generatedImageUrl,omitempty" firestore:"generatedImageUrl,omitempty"`
}

// GenerationResult is the full bundle returned to the caller after a
// finalization run. ArtifactBytes stays client-side and is never persisted.
type GenerationResult struct {
	ComputoItems      []ComputoItem          `json:"computoItems"`
	ReportText        string                 `json:"reportText"`
	GeneratedImage    string                 `json:"generatedImage,omitempty"`
	Metadata          *CertificationMetadata `json:"metadata,omitempty"`
	ArtifactBytes     []byte                 `json:"-"`
	Sources           []GroundingSource      `json:"sources,omitempty"`
	ProjectID         string                 `json:"projectId,omitempty"`
	PDFDownloadURL    string                 `json:"pdfDownloadUrl,omitempty"`
	OriginalImageURL  string                 `json:"originalImageUrl,omitempty"`
	GeneratedImageURL string                 `json:"generatedImageUrl,omitempty"`
}

// Profile is the users collection document.
type Profile struct {
	UID         string    `json:"uid" firestore:"-"`
	Email       string    `json:"email,omitempty" firestore:"email,omitempty"`
	DisplayName string    `json:"displayName,omitempty" firestore:"displayName,omitempty"`
	CreatedAt   time.Time `json:"createdAt" firestore:"createdAt,serverTimestamp"`
}
