package services

import (
	"context"
	"strings"

	"github.com/thomasmilici/domux-backend/internal/pkg/apperr"
	"github.com/thomasmilici/domux-backend/internal/platform/logger"
	"github.com/thomasmilici/domux-backend/internal/repos"
	"github.com/thomasmilici/domux-backend/internal/types"
)

// SessionUpdate is the set of top-level session fields a client may change
// outside the context record. Nil fields stay untouched.
type SessionUpdate struct {
	ProjectName     *string
	ProjectType     *types.ProjectType
	Region          *string
	PreferredStores *[]string
}

// SessionService owns the editable half of the workflow: creating sessions
// and keeping the server-held session document in sync with local edits.
type SessionService interface {
	Create(ctx context.Context, user types.User) (*types.ProjectSession, error)
	Get(ctx context.Context, user types.User, id string) (*types.ProjectSession, error)
	Subscribe(ctx context.Context, user types.User, id string) (<-chan *types.ProjectSession, error)
	ListByUser(ctx context.Context, user types.User) ([]*types.ProjectSession, error)

	AddDescriptionItem(ctx context.Context, user types.User, id, text string) (*types.ProjectSession, error)
	EditDescriptionItem(ctx context.Context, user types.User, id string, index int, text string) (*types.ProjectSession, error)
	RemoveDescriptionItem(ctx context.Context, user types.User, id string, index int) (*types.ProjectSession, error)
	UpdateCommittente(ctx context.Context, user types.User, id string, c types.Committente) (*types.ProjectSession, error)
	UpdateLocation(ctx context.Context, user types.User, id, location string) (*types.ProjectSession, error)
	Update(ctx context.Context, user types.User, id string, upd SessionUpdate) (*types.ProjectSession, error)

	Pause(ctx context.Context, user types.User, id, note string) error
	Resume(ctx context.Context, user types.User, id string) (*types.ProjectSession, error)

	// NewRevision opens a child session seeded from a finalized project,
	// linked through parentId, for a versioned re-edit.
	NewRevision(ctx context.Context, user types.User, project *types.Project, parentSessionID string) (*types.ProjectSession, error)
}

type sessionService struct {
	log      *logger.Logger
	sessions repos.SessionRepo
}

func NewSessionService(log *logger.Logger, sessions repos.SessionRepo) SessionService {
	return &sessionService{
		log:      log.With("service", "SessionService"),
		sessions: sessions,
	}
}

func (ss *sessionService) Create(ctx context.Context, user types.User) (*types.ProjectSession, error) {
	session := &types.ProjectSession{
		UserID: user.UID,
		Status: types.SessionStatusOpen,
		Context: types.SessionContext{
			DescriptionItems: []string{},
		},
	}
	id, err := ss.sessions.Create(ctx, session)
	if err != nil {
		return nil, err
	}
	ss.log.Info("Session created", "session_id", id)
	return ss.sessions.GetByID(ctx, id)
}

// owned loads the session and enforces that it belongs to the caller.
func (ss *sessionService) owned(ctx context.Context, user types.User, id string) (*types.ProjectSession, error) {
	session, err := ss.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.UserID != user.UID {
		return nil, apperr.Forbidden("la sessione appartiene a un altro utente")
	}
	return session, nil
}

func (ss *sessionService) Get(ctx context.Context, user types.User, id string) (*types.ProjectSession, error) {
	return ss.owned(ctx, user, id)
}

func (ss *sessionService) Subscribe(ctx context.Context, user types.User, id string) (<-chan *types.ProjectSession, error) {
	if _, err := ss.owned(ctx, user, id); err != nil {
		return nil, err
	}
	return ss.sessions.Subscribe(ctx, id)
}

func (ss *sessionService) ListByUser(ctx context.Context, user types.User) ([]*types.ProjectSession, error) {
	return ss.sessions.ListByUser(ctx, user.UID)
}

func (ss *sessionService) AddDescriptionItem(ctx context.Context, user types.User, id, text string) (*types.ProjectSession, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation("la descrizione non può essere vuota")
	}
	session, err := ss.owned(ctx, user, id)
	if err != nil {
		return nil, err
	}
	items := append(append([]string(nil), session.Context.DescriptionItems...), text)
	return ss.patchDescription(ctx, id, items)
}

func (ss *sessionService) EditDescriptionItem(ctx context.Context, user types.User, id string, index int, text string) (*types.ProjectSession, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation("la descrizione non può essere vuota")
	}
	session, err := ss.owned(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(session.Context.DescriptionItems) {
		return nil, apperr.Validation("indice della descrizione non valido")
	}
	items := append([]string(nil), session.Context.DescriptionItems...)
	items[index] = text
	return ss.patchDescription(ctx, id, items)
}

func (ss *sessionService) RemoveDescriptionItem(ctx context.Context, user types.User, id string, index int) (*types.ProjectSession, error) {
	session, err := ss.owned(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(session.Context.DescriptionItems) {
		return nil, apperr.Validation("indice della descrizione non valido")
	}
	items := append([]string(nil), session.Context.DescriptionItems...)
	items = append(items[:index], items[index+1:]...)
	return ss.patchDescription(ctx, id, items)
}

func (ss *sessionService) patchDescription(ctx context.Context, id string, items []string) (*types.ProjectSession, error) {
	if err := ss.sessions.PatchContext(ctx, id, repos.ContextPatch{DescriptionItems: &items}); err != nil {
		return nil, err
	}
	return ss.sessions.GetByID(ctx, id)
}

func (ss *sessionService) UpdateCommittente(ctx context.Context, user types.User, id string, c types.Committente) (*types.ProjectSession, error) {
	if _, err := ss.owned(ctx, user, id); err != nil {
		return nil, err
	}
	if err := ss.sessions.PatchContext(ctx, id, repos.ContextPatch{Committente: &c}); err != nil {
		return nil, err
	}
	return ss.sessions.GetByID(ctx, id)
}

func (ss *sessionService) UpdateLocation(ctx context.Context, user types.User, id, location string) (*types.ProjectSession, error) {
	if _, err := ss.owned(ctx, user, id); err != nil {
		return nil, err
	}
	location = strings.TrimSpace(location)
	if err := ss.sessions.PatchContext(ctx, id, repos.ContextPatch{Location: &location}); err != nil {
		return nil, err
	}
	return ss.sessions.GetByID(ctx, id)
}

func (ss *sessionService) Update(ctx context.Context, user types.User, id string, upd SessionUpdate) (*types.ProjectSession, error) {
	if _, err := ss.owned(ctx, user, id); err != nil {
		return nil, err
	}
	if upd.ProjectType != nil {
		switch *upd.ProjectType {
		case types.ProjectTypePublicWorks, types.ProjectTypePrivateEstimate:
		default:
			return nil, apperr.Validation("tipo di progetto non valido")
		}
	}

	patch := repos.SessionPatch{
		ProjectName:     upd.ProjectName,
		ProjectType:     upd.ProjectType,
		Region:          upd.Region,
		PreferredStores: upd.PreferredStores,
	}
	if patch.IsEmpty() {
		return ss.sessions.GetByID(ctx, id)
	}
	if err := ss.sessions.Patch(ctx, id, patch); err != nil {
		return nil, err
	}
	return ss.sessions.GetByID(ctx, id)
}

func (ss *sessionService) Pause(ctx context.Context, user types.User, id, note string) error {
	if _, err := ss.owned(ctx, user, id); err != nil {
		return err
	}
	return ss.sessions.Pause(ctx, id, note)
}

func (ss *sessionService) Resume(ctx context.Context, user types.User, id string) (*types.ProjectSession, error) {
	session, err := ss.owned(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if session.Status != types.SessionStatusPaused {
		return nil, apperr.Conflict("la sessione non è in pausa")
	}
	open := types.SessionStatusOpen
	empty := ""
	if err := ss.sessions.Patch(ctx, id, repos.SessionPatch{Status: &open, ErrorLog: &empty}); err != nil {
		return nil, err
	}
	return ss.sessions.GetByID(ctx, id)
}

func (ss *sessionService) NewRevision(ctx context.Context, user types.User, project *types.Project, parentSessionID string) (*types.ProjectSession, error) {
	if project == nil {
		return nil, apperr.Validation("progetto di partenza mancante")
	}
	if project.UserID != user.UID {
		return nil, apperr.Forbidden("il progetto appartiene a un altro utente")
	}

	session := &types.ProjectSession{
		UserID:      user.UID,
		ProjectName: project.ProjectName,
		Status:      types.SessionStatusOpen,
		ParentID:    parentSessionID,
		Context: types.SessionContext{
			DescriptionItems: strings.Split(project.UserInput, "; "),
			Location:         project.Location,
			Committente:      project.Committente,
		},
	}
	id, err := ss.sessions.Create(ctx, session)
	if err != nil {
		return nil, err
	}
	ss.log.Info("Revision session created", "session_id", id, "project_id", project.ID)
	return ss.sessions.GetByID(ctx, id)
}
