// Package media holds the file reference model shared by every stage and
// resolves references to paths or URLs that ffmpeg and whisper can consume.
package media

import (
	"strings"

	apperrors "captionflow/internal/pkg/errors"
)

// Kind tells which variant of a FileReference is populated.
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// LocalFile is an artifact at <mediaDir>/<ID><Extension>.
type LocalFile struct {
	ID        string `json:"id"`
	Extension string `json:"extension"`
}

// RemoteFile is fetched by the external tool directly from URL.
type RemoteFile struct {
	URL       string `json:"url"`
	Extension string `json:"extension"`
}

// FileReference is a tagged union: exactly one of Local or Remote is set.
type FileReference struct {
	Local  *LocalFile  `json:"local,omitempty"`
	Remote *RemoteFile `json:"remote,omitempty"`
}

// Local builds a local reference. The extension is normalized to ".ext".
func Local(id, ext string) FileReference {
	return FileReference{Local: &LocalFile{ID: id, Extension: NormalizeExtension(ext)}}
}

// Remote builds a remote reference. The extension is normalized to ".ext".
func Remote(url, ext string) FileReference {
	return FileReference{Remote: &RemoteFile{URL: url, Extension: NormalizeExtension(ext)}}
}

// Kind returns the populated variant, or "" for an invalid reference.
func (r FileReference) Kind() Kind {
	switch {
	case r.Local != nil && r.Remote == nil:
		return KindLocal
	case r.Remote != nil && r.Local == nil:
		return KindRemote
	default:
		return ""
	}
}

// Validate rejects references with both or neither variant populated, and
// variants with empty identifiers.
func (r FileReference) Validate() error {
	switch r.Kind() {
	case KindLocal:
		if r.Local.ID == "" {
			return apperrors.Validation("local file reference has no id")
		}
		if strings.ContainsAny(r.Local.ID, `/\`) || r.Local.ID == "." || r.Local.ID == ".." {
			return apperrors.Validationf("local file id %q is not a plain name", r.Local.ID)
		}
	case KindRemote:
		if r.Remote.URL == "" {
			return apperrors.Validation("remote file reference has no url")
		}
	default:
		if r.Local != nil {
			return apperrors.Validation("file reference has both local and remote set")
		}
		return apperrors.Validation("file reference has neither local nor remote set")
	}
	return nil
}

// Extension returns the ".ext" of whichever variant is set.
func (r FileReference) Extension() string {
	switch r.Kind() {
	case KindLocal:
		return r.Local.Extension
	case KindRemote:
		return r.Remote.Extension
	}
	return ""
}

// String is for logs.
func (r FileReference) String() string {
	switch r.Kind() {
	case KindLocal:
		return "local:" + r.Local.ID + r.Local.Extension
	case KindRemote:
		return "remote:" + r.Remote.URL
	}
	return "invalid"
}

// NormalizeExtension returns ext lowercased with a single leading dot.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	ext = strings.TrimLeft(ext, ".")
	if ext == "" {
		return ""
	}
	return "." + ext
}

// VideoDimensions is the crop/scale target for the video stream.
type VideoDimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// MediaPair is the unit of work handed from stage to stage. A nil Audio
// means "keep the source audio track".
type MediaPair struct {
	Video      FileReference    `json:"video"`
	Audio      *FileReference   `json:"audio,omitempty"`
	Dimensions *VideoDimensions `json:"dimensions,omitempty"`
}

// Validate checks both references and the dimensions.
func (p MediaPair) Validate() error {
	if err := p.Video.Validate(); err != nil {
		return apperrors.Wrap(err, "media.pair", "invalid video reference")
	}
	if p.Audio != nil {
		if err := p.Audio.Validate(); err != nil {
			return apperrors.Wrap(err, "media.pair", "invalid audio reference")
		}
	}
	if d := p.Dimensions; d != nil && (d.Width <= 0 || d.Height <= 0) {
		return apperrors.Validationf("video dimensions must be positive, got %dx%d", d.Width, d.Height)
	}
	return nil
}
