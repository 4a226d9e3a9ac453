package storage

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"captionflow/internal/adapters/storage/gdrive"
	"captionflow/internal/adapters/storage/localfs"
	"captionflow/internal/adapters/storage/s3"
)

// Config selects and configures the asset storage backend.
type Config struct {
	Provider string `toml:"provider"`

	LocalRoot      string `toml:"local_root"`
	LocalPublicURL string `toml:"local_public_url"`

	GDriveClientID     string `toml:"gdrive_client_id"`
	GDriveClientSecret string `toml:"gdrive_client_secret"`
	GDriveRefreshToken string `toml:"gdrive_refresh_token"`
	GDriveFolderID     string `toml:"gdrive_folder_id"`

	S3Bucket string `toml:"s3_bucket"`
	S3Region string `toml:"s3_region"`
}

// NewProvider builds the configured provider. An empty provider means localfs.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "", "localfs":
		if cfg.LocalRoot == "" {
			return nil, fmt.Errorf("storage: local_root is required for localfs")
		}
		return localfs.New(cfg.LocalRoot, cfg.LocalPublicURL), nil

	case "gdrive":
		return newGDriveProvider(ctx, cfg)

	case "s3":
		if cfg.S3Bucket == "" || cfg.S3Region == "" {
			return nil, fmt.Errorf("storage: s3_bucket and s3_region are required for s3")
		}
		return s3.New(ctx, cfg.S3Bucket, cfg.S3Region)

	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
}

// OAuthConfig is the Drive OAuth client shared with cmd/gdrive-auth.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirectURL,
		Scopes:       []string{drive.DriveFileScope},
	}
}

func newGDriveProvider(ctx context.Context, cfg Config) (Provider, error) {
	if cfg.GDriveClientID == "" || cfg.GDriveClientSecret == "" || cfg.GDriveRefreshToken == "" {
		return nil, fmt.Errorf("storage: gdrive client id, secret and refresh token are required")
	}

	conf := OAuthConfig(cfg.GDriveClientID, cfg.GDriveClientSecret, "")
	httpClient := conf.Client(ctx, &oauth2.Token{RefreshToken: cfg.GDriveRefreshToken})

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, err
	}

	return gdrive.NewClient(srv, cfg.GDriveFolderID), nil
}
