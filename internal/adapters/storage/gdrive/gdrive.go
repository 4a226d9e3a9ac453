package gdrive

import (
	"context"
	"fmt"
	"path"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"captionflow/internal/ports"
)

// Client implements ports.StorageProvider backed by Google Drive. The
// object key's base name becomes the Drive file name; the returned
// ObjectKey is the Drive file id. Uploaded files are shared with "anyone
// with the link" so the webhook receiver can fetch them.
type Client struct {
	srv      *drive.Service
	folderID string
}

func NewClient(srv *drive.Service, folderID string) *Client {
	return &Client{srv: srv, folderID: folderID}
}

func (c *Client) Provider() string { return "gdrive" }

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, fmt.Errorf("object_key is required")
	}

	file := &drive.File{
		Name:        path.Base(in.ObjectKey),
		Description: in.ObjectKey,
	}
	if c.folderID != "" {
		file.Parents = []string{c.folderID}
	}

	call := c.srv.Files.Create(file).SupportsAllDrives(true).Fields("id", "size")
	if in.ContentType != "" {
		call = call.Media(in.Reader, googleapi.ContentType(in.ContentType))
	} else {
		call = call.Media(in.Reader)
	}

	created, err := call.Context(ctx).Do()
	if err != nil {
		return ports.PutObjectOutput{}, fmt.Errorf("gdrive upload failed: %w", err)
	}

	perm := &drive.Permission{Type: "anyone", Role: "reader"}
	if _, err := c.srv.Permissions.Create(created.Id, perm).SupportsAllDrives(true).Context(ctx).Do(); err != nil {
		return ports.PutObjectOutput{}, fmt.Errorf("gdrive share failed: %w", err)
	}

	size := created.Size
	if size == 0 {
		size = in.Size
	}
	return ports.PutObjectOutput{
		ObjectKey: created.Id,
		Size:      size,
		PublicURL: PublicURL(created.Id),
	}, nil
}

// PublicURL is the direct-download link of a shared Drive file.
func PublicURL(fileID string) string {
	return "https://drive.google.com/uc?id=" + fileID + "&export=download"
}

func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	return c.srv.Files.Delete(objectKey).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.srv.About.Get().Fields("user").Context(ctx).Do()
	return err
}
