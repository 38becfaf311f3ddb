package repos

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/thomasmilici/domux-backend/internal/pkg/apperr"
	"github.com/thomasmilici/domux-backend/internal/platform/logger"
	"github.com/thomasmilici/domux-backend/internal/types"
)

const sessionCollection = "projectSessions"

type SessionRepo interface {
	Create(ctx context.Context, s *types.ProjectSession) (string, error)
	GetByID(ctx context.Context, id string) (*types.ProjectSession, error)
	Subscribe(ctx context.Context, id string) (<-chan *types.ProjectSession, error)
	PatchContext(ctx context.Context, id string, p ContextPatch) error
	Patch(ctx context.Context, id string, p SessionPatch) error
	CloseFinalized(ctx context.Context, id string, expected types.SessionStatus, projectName, projectID string) error
	Pause(ctx context.Context, id, errorLog string) error
	ListByUser(ctx context.Context, userID string) ([]*types.ProjectSession, error)
}

type sessionRepo struct {
	client *firestore.Client
	log    *logger.Logger
}

func NewSessionRepo(client *firestore.Client, baseLog *logger.Logger) SessionRepo {
	return &sessionRepo{client: client, log: baseLog.With("repo", "SessionRepo")}
}

func (r *sessionRepo) col() *firestore.CollectionRef {
	return r.client.Collection(sessionCollection)
}

func (r *sessionRepo) Create(ctx context.Context, s *types.ProjectSession) (string, error) {
	if s == nil {
		return "", fmt.Errorf("session required")
	}
	if s.UserID == "" {
		return "", fmt.Errorf("session owner required")
	}
	ref := r.col().NewDoc()
	if _, err := ref.Create(ctx, s); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	s.ID = ref.ID
	return ref.ID, nil
}

func (r *sessionRepo) GetByID(ctx context.Context, id string) (*types.ProjectSession, error) {
	snap, err := r.col().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, apperr.NotFound("sessione non trovata")
		}
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	var s types.ProjectSession
	if err := snap.DataTo(&s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	s.ID = snap.Ref.ID
	return &s, nil
}

// Subscribe streams session snapshots until ctx is cancelled. The channel is
// closed when the stream ends; deleted documents end the stream.
func (r *sessionRepo) Subscribe(ctx context.Context, id string) (<-chan *types.ProjectSession, error) {
	if id == "" {
		return nil, fmt.Errorf("session id required")
	}
	ch := make(chan *types.ProjectSession, 1)
	iter := r.col().Doc(id).Snapshots(ctx)

	go func() {
		defer close(ch)
		defer iter.Stop()
		for {
			snap, err := iter.Next()
			if err != nil {
				if status.Code(err) != codes.Canceled {
					r.log.Warn("session snapshot stream ended", "session_id", id, "error", err)
				}
				return
			}
			if !snap.Exists() {
				return
			}
			var s types.ProjectSession
			if err := snap.DataTo(&s); err != nil {
				r.log.Warn("failed to decode session snapshot", "session_id", id, "error", err)
				continue
			}
			s.ID = snap.Ref.ID
			select {
			case ch <- &s:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

func (r *sessionRepo) PatchContext(ctx context.Context, id string, p ContextPatch) error {
	if p.IsEmpty() {
		return nil
	}
	if _, err := r.col().Doc(id).Update(ctx, p.Updates()); err != nil {
		return fmt.Errorf("patch session context %s: %w", id, err)
	}
	return nil
}

func (r *sessionRepo) Patch(ctx context.Context, id string, p SessionPatch) error {
	if p.IsEmpty() {
		return nil
	}
	if _, err := r.col().Doc(id).Update(ctx, p.Updates()); err != nil {
		return fmt.Errorf("patch session %s: %w", id, err)
	}
	return nil
}

// CloseFinalized transitions the session to closed inside a transaction. The
// write is rejected when the status no longer matches the one observed at the
// start of the finalization run, guarding against a concurrent finalize.
func (r *sessionRepo) CloseFinalized(ctx context.Context, id string, expected types.SessionStatus, projectName, projectID string) error {
	ref := r.col().Doc(id)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var cur types.ProjectSession
		if err := snap.DataTo(&cur); err != nil {
			return err
		}
		if cur.Status != expected {
			return apperr.Conflict(fmt.Sprintf("la sessione è stata modificata da un'altra operazione (stato %s)", cur.Status))
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "status", Value: types.SessionStatusClosed},
			{Path: "generatedProjectId", Value: projectID},
			{Path: "projectName", Value: projectName},
			{Path: "updatedAt", Value: firestore.ServerTimestamp},
		})
	})
	if err != nil {
		return err
	}
	return nil
}

// Pause is the best-effort recovery write after a failed finalization. It
// runs in a transaction and no-ops on a closed session: a session that holds
// a generatedProjectId stays closed even when the losing side of a concurrent
// finalize tries to pause it.
func (r *sessionRepo) Pause(ctx context.Context, id, errorLog string) error {
	ref := r.col().Doc(id)
	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var cur types.ProjectSession
		if err := snap.DataTo(&cur); err != nil {
			return err
		}
		if cur.Status == types.SessionStatusClosed {
			r.log.Warn("skipping pause of a closed session", "session_id", id)
			return nil
		}
		updates := []firestore.Update{
			{Path: "status", Value: types.SessionStatusPaused},
			{Path: "updatedAt", Value: firestore.ServerTimestamp},
		}
		if errorLog != "" {
			updates = append(updates, firestore.Update{Path: "errorLog", Value: errorLog})
		}
		return tx.Update(ref, updates)
	})
}

func (r *sessionRepo) ListByUser(ctx context.Context, userID string) ([]*types.ProjectSession, error) {
	iter := r.col().Where("userId", "==", userID).Documents(ctx)
	defer iter.Stop()
	out := []*types.ProjectSession{}
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list sessions for user: %w", err)
		}
		var s types.ProjectSession
		if err := snap.DataTo(&s); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", snap.Ref.ID, err)
		}
		s.ID = snap.Ref.ID
		out = append(out, &s)
	}
	return out, nil
}
