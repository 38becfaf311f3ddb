package services

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/thomasmilici/domux-backend/internal/pkg/apperr"
	"github.com/thomasmilici/domux-backend/internal/pkg/hashutil"
	"github.com/thomasmilici/domux-backend/internal/platform/gcp"
	"github.com/thomasmilici/domux-backend/internal/platform/logger"
	"github.com/thomasmilici/domux-backend/internal/repos"
	"github.com/thomasmilici/domux-backend/internal/types"
	"github.com/thomasmilici/domux-backend/internal/utils"
)

const defaultUploadTimeoutMS = 300000

// FinalizeInput is the user-approved draft handed to a finalization run.
// ConfirmedTitle is the title the user accepted (or edited) after SuggestTitle.
type FinalizeInput struct {
	ConfirmedTitle     string
	Items              []types.ComputoItem
	Report             string
	Sources            []types.GroundingSource
	SourceImage        *NormalizedImage
	PreviewImageBase64 string
}

// TitleConfirmer resolves a suggested title into the confirmed one. Returning
// ok=false cancels the run before any side effect.
type TitleConfirmer interface {
	Confirm(ctx context.Context, suggested string) (confirmed string, ok bool, err error)
}

// FinalizeService turns an edited draft into a certified, uploaded, persisted
// project and closes the originating session.
type FinalizeService interface {
	// SuggestTitle derives the project title for user confirmation. It
	// performs no writes, so abandoning the flow here leaves no trace.
	SuggestTitle(ctx context.Context, user types.User, sessionID string, items []types.ComputoItem) (string, error)

	// Finalize runs the full pipeline with an already-confirmed title.
	Finalize(ctx context.Context, user types.User, sessionID string, in FinalizeInput) (*types.GenerationResult, error)

	// Run chains SuggestTitle, a confirmation callback and Finalize for
	// non-HTTP callers.
	Run(ctx context.Context, user types.User, sessionID string, in FinalizeInput, confirmer TitleConfirmer) (*types.GenerationResult, error)

	// Rebuild re-renders and re-hashes an already-finalized result after a
	// user edit. Same uuid and readable id, fresh timestamp and hash. No
	// uploads, no persistence.
	Rebuild(ctx context.Context, user types.User, view SessionView, items []types.ComputoItem, report string, prev types.CertificationMetadata, beforeImage, afterImage []byte) ([]byte, *types.CertificationMetadata, error)
}

type finalizeService struct {
	log      *logger.Logger
	ai       AIClient
	builder  ArtifactBuilder
	bucket   gcp.BucketService
	sessions repos.SessionRepo
	projects repos.ProjectRepo

	uploadTimeout time.Duration
	now           func() time.Time
	newUUID       func() string
	randBase36    func(n int) string
}

func NewFinalizeService(
	log *logger.Logger,
	ai AIClient,
	builder ArtifactBuilder,
	bucket gcp.BucketService,
	sessions repos.SessionRepo,
	projects repos.ProjectRepo,
) FinalizeService {
	serviceLog := log.With("service", "FinalizeService")
	timeoutMS := utils.GetEnvAsInt("UPLOAD_TIMEOUT_MS", defaultUploadTimeoutMS, serviceLog)
	return &finalizeService{
		log:           serviceLog,
		ai:            ai,
		builder:       builder,
		bucket:        bucket,
		sessions:      sessions,
		projects:      projects,
		uploadTimeout: time.Duration(timeoutMS) * time.Millisecond,
		now:           time.Now,
		newUUID:       uuid.NewString,
		randBase36:    randBase36,
	}
}

// loadOwnedSession fetches the session and verifies ownership and a
// finalizable status, returning the immutable view every later stage works on.
func (fs *finalizeService) loadOwnedSession(ctx context.Context, user types.User, sessionID string) (SessionView, error) {
	session, err := fs.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	if session.UserID != user.UID {
		return SessionView{}, apperr.Forbidden("la sessione appartiene a un altro utente")
	}
	if session.Status != types.SessionStatusOpen && session.Status != types.SessionStatusPaused {
		return SessionView{}, apperr.Conflict("la sessione è già stata finalizzata")
	}
	return NewSessionView(session), nil
}

func (fs *finalizeService) SuggestTitle(ctx context.Context, user types.User, sessionID string, items []types.ComputoItem) (string, error) {
	view, err := fs.loadOwnedSession(ctx, user, sessionID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(view.Committente.Cognome) == "" {
		return "", apperr.Validation("il cognome del committente è obbligatorio")
	}

	description := strings.Join(view.DescriptionItems, "; ")
	summary, err := fs.ai.SummarizeTitle(ctx, items, description)
	if err != nil {
		return "", apperr.WithPrefix("generazione fallita", apperr.Upstream("summarize_title", "impossibile generare il titolo", err))
	}

	title := fmt.Sprintf("%s Sig. %s - %s",
		strings.TrimSpace(summary),
		strings.TrimSpace(view.Committente.Cognome),
		fs.now().Format("02/01/2006"),
	)
	return title, nil
}

func (fs *finalizeService) Run(ctx context.Context, user types.User, sessionID string, in FinalizeInput, confirmer TitleConfirmer) (*types.GenerationResult, error) {
	suggested, err := fs.SuggestTitle(ctx, user, sessionID, in.Items)
	if err != nil {
		return nil, err
	}
	confirmed, ok, err := confirmer.Confirm(ctx, suggested)
	if err != nil {
		return nil, err
	}
	if !ok {
		// explicit cancellation: no side effects, no state change
		return nil, apperr.Validation("finalizzazione annullata")
	}
	in.ConfirmedTitle = confirmed
	return fs.Finalize(ctx, user, sessionID, in)
}

func (fs *finalizeService) Finalize(ctx context.Context, user types.User, sessionID string, in FinalizeInput) (*types.GenerationResult, error) {
	// Step 1: preconditions. Nothing below this block touches the network
	// until they all pass.
	view, err := fs.loadOwnedSession(ctx, user, sessionID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(view.Committente.Cognome) == "" {
		return nil, apperr.Validation("il cognome del committente è obbligatorio")
	}
	title := strings.TrimSpace(in.ConfirmedTitle)
	if title == "" {
		return nil, apperr.Validation("il titolo del progetto è obbligatorio")
	}
	if len(in.Items) == 0 {
		return nil, apperr.Validation("il computo non contiene voci")
	}
	view.ProjectName = title

	comp := newCompensationLog(fs.log, fs.bucket, fs.sessions)
	result, err := fs.run(ctx, user, view, in, comp)
	if err != nil {
		// Pause the session so the user can resume from the dashboard,
		// then undo whatever side effects are still undone.
		comp.AddSessionPause(view.ID, apperr.UserMessage(err))
		comp.Run(context.WithoutCancel(ctx))
		return nil, err
	}
	return result, nil
}

func (fs *finalizeService) run(ctx context.Context, user types.User, view SessionView, in FinalizeInput, comp *compensationLog) (*types.GenerationResult, error) {
	runStart := fs.now()

	// Step 3: identifiers. Readable-id collisions are accepted: the id is
	// for human reference, never a key.
	metadata := types.CertificationMetadata{
		UUID:             fs.newUUID(),
		ReadableID:       fmt.Sprintf("CM-%s-%s", runStart.UTC().Format("2006-01-02"), fs.randBase36(4)),
		Timestamp:        runStart.UTC().Format(time.RFC3339),
		GeneratorVersion: GeneratorVersion,
		ParentID:         view.ParentID,
	}

	// Steps 4–5: build, then hash the exact bytes being persisted.
	artifact, err := fs.builder.Build(BuildInput{
		Items:    in.Items,
		Report:   in.Report,
		User:     user,
		View:     view,
		Metadata: metadata,
		BeforeImage: func() []byte {
			if in.SourceImage != nil {
				return in.SourceImage.Bytes
			}
			return nil
		}(),
	})
	if err != nil {
		return nil, apperr.WithPrefix("generazione fallita", apperr.Internal("impossibile generare il documento", err))
	}
	metadata.Hash = hashutil.SumSHA256(artifact)

	// Step 6: serialized uploads, each under its own timeout. A missing
	// image is a skip, not a failure.
	basePath := fmt.Sprintf("projects/%s/%s", user.UID, view.ID)
	pdfKey := fmt.Sprintf("%s/%s_%s.pdf", basePath, sanitizeProjectName(view.ProjectName), metadata.ReadableID)

	if err := fs.uploadWithTimeout(ctx, "upload_pdf", func(ctx context.Context) error {
		return fs.bucket.Upload(ctx, pdfKey, bytes.NewReader(artifact), "application/pdf")
	}); err != nil {
		return nil, apperr.WithPrefix("salvataggio fallito", err)
	}
	comp.AddBlobDelete(pdfKey)
	if attrs, err := fs.bucket.Attrs(ctx, pdfKey); err != nil {
		fs.log.Warn("could not read back stored artifact attributes", "key", pdfKey, "error", err)
	} else if attrs.Size != int64(len(artifact)) {
		fs.log.Warn("stored artifact size differs from built bytes", "key", pdfKey, "stored", attrs.Size, "built", len(artifact))
	}
	pdfURL := fs.bucket.PublicURL(pdfKey)

	var originalImageURL string
	if in.SourceImage != nil && len(in.SourceImage.Bytes) > 0 {
		key := fmt.Sprintf("%s/original_%d", basePath, runStart.UnixNano())
		if err := fs.uploadWithTimeout(ctx, "upload_original", func(ctx context.Context) error {
			return fs.bucket.Upload(ctx, key, bytes.NewReader(in.SourceImage.Bytes), in.SourceImage.MimeType)
		}); err != nil {
			return nil, apperr.WithPrefix("salvataggio fallito", err)
		}
		comp.AddBlobDelete(key)
		originalImageURL = fs.bucket.PublicURL(key)
	}

	var generatedImageURL string
	if strings.TrimSpace(in.PreviewImageBase64) != "" {
		key := fmt.Sprintf("%s/generated_%d.jpeg", basePath, runStart.UnixNano())
		if err := fs.uploadWithTimeout(ctx, "upload_generated", func(ctx context.Context) error {
			return fs.bucket.UploadBase64(ctx, key, in.PreviewImageBase64, "image/jpeg")
		}); err != nil {
			return nil, apperr.WithPrefix("salvataggio fallito", err)
		}
		comp.AddBlobDelete(key)
		generatedImageURL = fs.bucket.PublicURL(key)
	}

	// Step 7: one append-only project record. Image URL fields stay absent
	// when no image exists.
	project := &types.Project{
		UserID:       user.UID,
		UserInput:    strings.Join(view.DescriptionItems, "; "),
		ProjectName:  view.ProjectName,
		Location:     view.Location,
		Committente:  view.Committente,
		IsRenovation: in.SourceImage != nil,
		Result: types.EstimateResult{
			ComputoItems: in.Items,
			ReportText:   in.Report,
			Sources:      in.Sources,
		},
		PDFDownloadURL:    pdfURL,
		Metadata:          metadata,
		OriginalImageURL:  originalImageURL,
		GeneratedImageURL: generatedImageURL,
	}
	projectID, err := fs.projects.Create(ctx, project)
	if err != nil {
		return nil, apperr.WithPrefix("salvataggio fallito", apperr.Storage("persist_project", "impossibile salvare il progetto", err))
	}
	// The record now references the blobs; they must survive any later
	// failure.
	comp.ClearBlobDeletes()

	// Step 8: close the session, rejecting if its status moved since the
	// run began.
	if err := fs.sessions.CloseFinalized(ctx, view.ID, view.Status, view.ProjectName, projectID); err != nil {
		return nil, apperr.WithPrefix("salvataggio fallito", err)
	}

	fs.log.Info("Finalization completed",
		"session_id", view.ID,
		"project_id", projectID,
		"readable_id", metadata.ReadableID,
		"hash", metadata.Hash,
	)

	// Step 9: the full bundle, artifact bytes included for immediate
	// client-side display.
	return &types.GenerationResult{
		ComputoItems:      in.Items,
		ReportText:        in.Report,
		GeneratedImage:    in.PreviewImageBase64,
		Metadata:          &metadata,
		ArtifactBytes:     artifact,
		Sources:           in.Sources,
		ProjectID:         projectID,
		PDFDownloadURL:    pdfURL,
		OriginalImageURL:  originalImageURL,
		GeneratedImageURL: generatedImageURL,
	}, nil
}

func (fs *finalizeService) Rebuild(ctx context.Context, user types.User, view SessionView, items []types.ComputoItem, report string, prev types.CertificationMetadata, beforeImage, afterImage []byte) ([]byte, *types.CertificationMetadata, error) {
	if prev.UUID == "" || prev.ReadableID == "" {
		return nil, nil, apperr.Validation("metadati della versione precedente mancanti")
	}

	metadata := types.CertificationMetadata{
		UUID:             prev.UUID,
		ReadableID:       prev.ReadableID,
		Timestamp:        fs.now().UTC().Format(time.RFC3339),
		GeneratorVersion: GeneratorVersion,
		ParentID:         prev.ParentID,
	}

	artifact, err := fs.builder.Build(BuildInput{
		Items:       items,
		Report:      report,
		User:        user,
		View:        view,
		Metadata:    metadata,
		BeforeImage: beforeImage,
		AfterImage:  afterImage,
	})
	if err != nil {
		return nil, nil, apperr.WithPrefix("generazione fallita", apperr.Internal("impossibile rigenerare il documento", err))
	}
	metadata.Hash = hashutil.SumSHA256(artifact)
	return artifact, &metadata, nil
}

// uploadWithTimeout bounds one remote call. A hang becomes a rejected
// operation with a clear message; it is never retried here.
func (fs *finalizeService) uploadWithTimeout(ctx context.Context, stage string, op func(ctx context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, fs.uploadTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- op(opCtx) }()

	select {
	case err := <-done:
		if err != nil {
			if opCtx.Err() == context.DeadlineExceeded {
				return apperr.Timeout(stage)
			}
			return apperr.Storage(stage, "caricamento non riuscito", err)
		}
		return nil
	case <-opCtx.Done():
		if opCtx.Err() == context.DeadlineExceeded {
			return apperr.Timeout(stage)
		}
		return apperr.Storage(stage, "operazione interrotta", opCtx.Err())
	}
}

var (
	nonWordRe    = regexp.MustCompile(`[^\w\s-]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// sanitizeProjectName makes a title safe for use in an object key and a
// filename: strip everything outside word chars/whitespace/hyphen, collapse
// whitespace runs to a single underscore, cap at 100 chars.
func sanitizeProjectName(name string) string {
	s := nonWordRe.ReplaceAllString(name, "")
	s = whitespaceRe.ReplaceAllString(strings.TrimSpace(s), "_")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

const base36Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

func randBase36(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = base36Alphabet[rand.Intn(len(base36Alphabet))]
	}
	return string(b)
}
