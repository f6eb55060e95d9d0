package firebase

import (
	"context"
	"fmt"
	"os"

	fb "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// Config selects the Firebase project.
type Config struct {
	ProjectID       string
	CredentialsFile string // empty = application default credentials
	StorageBucket   string
}

// NewApp initializes the Firebase app shared by the Firestore, Storage and Auth clients.
func NewApp(ctx context.Context, cfg Config) (*fb.App, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); err != nil {
			return nil, fmt.Errorf("credentials file: %w", err)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := fb.NewApp(ctx, &fb.Config{
		ProjectID:     cfg.ProjectID,
		StorageBucket: cfg.StorageBucket,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	return app, nil
}
