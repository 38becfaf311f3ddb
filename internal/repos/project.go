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

const projectCollection = "projects"

// ProjectRepo is append-only by contract: certified project records are never
// updated or deleted once written.
type ProjectRepo interface {
	Create(ctx context.Context, p *types.Project) (string, error)
	GetByID(ctx context.Context, id string) (*types.Project, error)
	ListByUser(ctx context.Context, userID string) ([]*types.Project, error)
}

type projectRepo struct {
	client *firestore.Client
	log    *logger.Logger
}

func NewProjectRepo(client *firestore.Client, baseLog *logger.Logger) ProjectRepo {
	return &projectRepo{client: client, log: baseLog.With("repo", "ProjectRepo")}
}

func (r *projectRepo) col() *firestore.CollectionRef {
	return r.client.Collection(projectCollection)
}

func (r *projectRepo) Create(ctx context.Context, p *types.Project) (string, error) {
	if p == nil {
		return "", fmt.Errorf("project required")
	}
	if p.UserID == "" {
		return "", fmt.Errorf("project owner required")
	}
	if p.PDFDownloadURL == "" {
		return "", fmt.Errorf("project artifact url required")
	}
	ref := r.col().NewDoc()
	if _, err := ref.Create(ctx, p); err != nil {
		return "", fmt.Errorf("create project: %w", err)
	}
	p.ID = ref.ID
	return ref.ID, nil
}

func (r *projectRepo) GetByID(ctx context.Context, id string) (*types.Project, error) {
	snap, err := r.col().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, apperr.NotFound("progetto non trovato")
		}
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	var p types.Project
	if err := snap.DataTo(&p); err != nil {
		return nil, fmt.Errorf("decode project %s: %w", id, err)
	}
	p.ID = snap.Ref.ID
	return &p, nil
}

func (r *projectRepo) ListByUser(ctx context.Context, userID string) ([]*types.Project, error) {
	iter := r.col().Where("userId", "==", userID).OrderBy("createdAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()
	out := []*types.Project{}
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list projects for user: %w", err)
		}
		var p types.Project
		if err := snap.DataTo(&p); err != nil {
			return nil, fmt.Errorf("decode project %s: %w", snap.Ref.ID, err)
		}
		p.ID = snap.Ref.ID
		out = append(out, &p)
	}
	return out, nil
}
