// Package assethost publishes local artifacts through a storage provider and
// reports where they can be fetched publicly.
package assethost

import (
	"context"
	"errors"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	apperrors "captionflow/internal/pkg/errors"
	"captionflow/internal/pkg/logger"
	"captionflow/internal/ports"
)

// DefaultFolder is the remote folder published artifacts land in.
const DefaultFolder = "bot/instagram/videos"

type UploadOptions struct {
	Folder string
	// ResourceKind is "video" for audio/video files and "raw" otherwise.
	ResourceKind string
}

type UploadResult struct {
	SecureURL    string
	Format       string
	ResourceKind string
	ObjectKey    string
	Bytes        int64
}

type Host struct {
	provider ports.StorageProvider
	log      *logger.Logger
}

func New(provider ports.StorageProvider, log *logger.Logger) *Host {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Host{provider: provider, log: log.WithComponent("assethost")}
}

// Provider names the backing storage.
func (h *Host) Provider() string { return h.provider.Provider() }

// Ping checks the backing storage.
func (h *Host) Ping(ctx context.Context) error { return h.provider.Ping(ctx) }

// Upload publishes the file at localPath under opts.Folder.
func (h *Host) Upload(ctx context.Context, localPath string, opts UploadOptions) (UploadResult, error) {
	const op = "assethost.upload"

	f, err := os.Open(localPath)
	if errors.Is(err, fs.ErrNotExist) {
		return UploadResult{}, apperrors.FileNotFound(localPath)
	}
	if err != nil {
		return UploadResult{}, apperrors.Wrap(err, op, "open artifact")
	}
	defer f.Close()

	var size int64
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}

	ext := filepath.Ext(localPath)
	folder := opts.Folder
	if folder == "" {
		folder = DefaultFolder
	}
	key := path.Join(folder, filepath.Base(localPath))

	start := time.Now()
	out, err := h.provider.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   key,
		ContentType: mime.TypeByExtension(ext),
		Reader:      f,
		Size:        size,
	})
	if err != nil {
		if ctx.Err() != nil {
			return UploadResult{}, apperrors.WrapWithCode(err, apperrors.CodeTimeout, op, "upload interrupted")
		}
		return UploadResult{}, apperrors.WrapWithCode(err, apperrors.CodeUnavailable, op, "upload failed").
			WithField("provider", h.provider.Provider())
	}

	h.log.FromContext(ctx).Info("artifact published",
		"provider", h.provider.Provider(),
		"object_key", out.ObjectKey,
		"bytes", out.Size,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return UploadResult{
		SecureURL:    out.PublicURL,
		Format:       strings.TrimPrefix(strings.ToLower(ext), "."),
		ResourceKind: opts.ResourceKind,
		ObjectKey:    out.ObjectKey,
		Bytes:        out.Size,
	}, nil
}
