package media

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	apperrors "captionflow/internal/pkg/errors"
)

// Resolver maps references to tool inputs under a shared media directory.
type Resolver struct {
	MediaDir string
	// Exists reports whether a local path is present. Defaults to os.Stat.
	Exists func(path string) bool
}

// NewResolver returns a Resolver backed by the real filesystem.
func NewResolver(mediaDir string) *Resolver {
	return &Resolver{MediaDir: mediaDir}
}

func (r *Resolver) exists(path string) bool {
	if r.Exists != nil {
		return r.Exists(path)
	}
	_, err := os.Stat(path)
	return err == nil
}

// Path returns the deterministic on-disk path of a local reference.
func (r *Resolver) Path(ref FileReference) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	if ref.Kind() != KindLocal {
		return "", apperrors.PreconditionFailed("remote reference has no local path").
			WithField("ref", ref.String())
	}
	return filepath.Join(r.MediaDir, ref.Local.ID+ref.Local.Extension), nil
}

// Source returns what the external tool should read: the local path (which
// must exist) or the remote URL (never checked).
func (r *Resolver) Source(ref FileReference) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	if ref.Kind() == KindRemote {
		return ref.Remote.URL, nil
	}
	p, err := r.Path(ref)
	if err != nil {
		return "", err
	}
	if !r.exists(p) {
		return "", apperrors.FileNotFound(p)
	}
	return p, nil
}

// ResolvedPair is a MediaPair turned into tool inputs. Audio is "" when the
// pair carries no companion audio.
type ResolvedPair struct {
	Video string
	Audio string
}

// ResolvePair resolves the video and, if present, the audio reference.
func (r *Resolver) ResolvePair(p MediaPair) (ResolvedPair, error) {
	if err := p.Validate(); err != nil {
		return ResolvedPair{}, err
	}
	video, err := r.Source(p.Video)
	if err != nil {
		return ResolvedPair{}, err
	}
	out := ResolvedPair{Video: video}
	if p.Audio != nil {
		audio, err := r.Source(*p.Audio)
		if err != nil {
			return ResolvedPair{}, err
		}
		out.Audio = audio
	}
	return out, nil
}

// NewOutput allocates a fresh local reference and its path. Ids are never
// reused, so re-running a stage cannot clobber a previous output.
func (r *Resolver) NewOutput(ext string) (FileReference, string) {
	ref := Local(uuid.NewString(), ext)
	return ref, filepath.Join(r.MediaDir, ref.Local.ID+ref.Local.Extension)
}

// Sidecar returns <mediaDir>/<id><ext> for a local reference, e.g. the
// captions file written next to a wav.
func (r *Resolver) Sidecar(ref FileReference, ext string) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	if ref.Kind() != KindLocal {
		return "", apperrors.PreconditionFailed("sidecar requires a local reference").
			WithField("ref", ref.String())
	}
	return filepath.Join(r.MediaDir, ref.Local.ID+NormalizeExtension(ext)), nil
}

// SidecarPath swaps the extension of a local path, the way captions are
// written beside the audio they were produced from.
func SidecarPath(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + NormalizeExtension(ext)
}

// Remove deletes the file behind a local reference. Remote references and
// files that are already gone are ignored.
func (r *Resolver) Remove(ref FileReference) error {
	if ref.Kind() != KindLocal {
		return nil
	}
	p, err := r.Path(ref)
	if err != nil {
		return err
	}
	return RemoveFile(p)
}

// RemoveFile deletes path, treating a missing file as success.
func RemoveFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperrors.Wrap(err, "media.remove", "remove artifact")
	}
	return nil
}

// Require fails with FILE NOT FOUND when path is missing.
func (r *Resolver) Require(path string) error {
	if !r.exists(path) {
		return apperrors.FileNotFound(path)
	}
	return nil
}
