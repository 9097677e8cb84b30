// Package gcp initialises the Firebase Admin SDK, the identity provider that
// issues the verified claim sets consumed by the tenant resolver.
package gcp

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// FirebaseConfig selects credentials. An empty CredentialsFile falls back to
// Application Default Credentials.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// NewApp creates a Firebase App instance.
func NewApp(ctx context.Context, cfg FirebaseConfig) (*firebase.App, error) {
	var fbConfig *firebase.Config
	if projectID := strings.TrimSpace(cfg.ProjectID); projectID != "" {
		fbConfig = &firebase.Config{ProjectID: projectID}
	}

	var opts []option.ClientOption
	if path := strings.TrimSpace(cfg.CredentialsFile); path != "" {
		opts = append(opts, option.WithCredentialsFile(path))
	}

	app, err := firebase.NewApp(ctx, fbConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	return app, nil
}

// InitFirebaseAuth initializes the Firebase App and returns its Auth client.
func InitFirebaseAuth(ctx context.Context, cfg FirebaseConfig) (*firebaseauth.Client, error) {
	app, err := NewApp(ctx, cfg)
	if err != nil {
		return nil, err
	}

	fbAuth, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase auth: %w", err)
	}
	return fbAuth, nil
}
