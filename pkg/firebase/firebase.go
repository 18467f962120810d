package firebase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// ErrNotConfigured means no credentials path was given and federated login stays off.
var ErrNotConfigured = errors.New("firebase credentials path not provided")

// NewAuthClient initializes the Firebase app from a service-account file and returns
// its auth client.
func NewAuthClient(ctx context.Context, credentialsPath string, log *slog.Logger) (*auth.Client, error) {
	if credentialsPath == "" {
		return nil, ErrNotConfigured
	}

	if _, err := os.Stat(credentialsPath); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("firebase credentials file not found at %s", credentialsPath)
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("get firebase auth client: %w", err)
	}

	log.InfoContext(ctx, "Firebase auth client is initialized",
		"credentialsPath", credentialsPath)

	return client, nil
}
