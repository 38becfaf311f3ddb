package repos

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/thomasmilici/domux-backend/internal/platform/logger"
	"github.com/thomasmilici/domux-backend/internal/types"
)

const userCollection = "users"

type UserRepo interface {
	GetByID(ctx context.Context, uid string) (*types.Profile, error)
	EnsureProfile(ctx context.Context, user types.User) (*types.Profile, error)
}

type userRepo struct {
	client *firestore.Client
	log    *logger.Logger
}

func NewUserRepo(client *firestore.Client, baseLog *logger.Logger) UserRepo {
	return &userRepo{client: client, log: baseLog.With("repo", "UserRepo")}
}

func (r *userRepo) GetByID(ctx context.Context, uid string) (*types.Profile, error) {
	snap, err := r.client.Collection(userCollection).Doc(uid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get user %s: %w", uid, err)
	}
	var p types.Profile
	if err := snap.DataTo(&p); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", uid, err)
	}
	p.UID = snap.Ref.ID
	return &p, nil
}

// EnsureProfile creates the users document on first authenticated request.
func (r *userRepo) EnsureProfile(ctx context.Context, user types.User) (*types.Profile, error) {
	existing, err := r.GetByID(ctx, user.UID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	p := &types.Profile{
		Email:       user.Email,
		DisplayName: user.DisplayName,
	}
	if _, err := r.client.Collection(userCollection).Doc(user.UID).Create(ctx, p); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return r.GetByID(ctx, user.UID)
		}
		return nil, fmt.Errorf("create user %s: %w", user.UID, err)
	}
	p.UID = user.UID
	return p, nil
}
