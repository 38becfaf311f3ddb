package gcp

import (
	"context"
	"fmt"
	"os"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"

	"cloud.google.com/go/firestore"
)

// Firebase bundles the admin app handles the service depends on: token
// verification and the Firestore document store.
type Firebase struct {
	App       *firebase.App
	Auth      *auth.Client
	Firestore *firestore.Client
}

func NewFirebase(ctx context.Context) (*Firebase, error) {
	projectID := strings.TrimSpace(os.Getenv("FIREBASE_PROJECT_ID"))
	if projectID == "" {
		return nil, fmt.Errorf("missing env var FIREBASE_PROJECT_ID")
	}

	opts := ClientOptionsFromEnv()
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get Auth client: %w", err)
	}

	fsClient, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return &Firebase{App: app, Auth: authClient, Firestore: fsClient}, nil
}

func (f *Firebase) Close() error {
	if f == nil || f.Firestore == nil {
		return nil
	}
	return f.Firestore.Close()
}
