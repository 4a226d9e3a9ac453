package media

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	apperrors "captionflow/internal/pkg/errors"
)

func TestFileReferenceValidate(t *testing.T) {
	tests := []struct {
		name    string
		ref     FileReference
		wantErr bool
		kind    Kind
	}{
		{"local", Local("abc", "mp4"), false, KindLocal},
		{"remote", Remote("https://cdn.example.com/v.mp4", ".mp4"), false, KindRemote},
		{"neither", FileReference{}, true, ""},
		{"both", FileReference{Local: &LocalFile{ID: "a"}, Remote: &RemoteFile{URL: "u"}}, true, ""},
		{"empty id", Local("", ".mp4"), true, KindLocal},
		{"path traversal", Local("../etc/passwd", ""), true, KindLocal},
		{"empty url", Remote("", ".mp4"), true, KindRemote},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ref.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !apperrors.IsValidation(err) {
				t.Errorf("expected validation code, got %s", apperrors.GetCode(err))
			}
			if got := tt.ref.Kind(); got != tt.kind {
				t.Errorf("Kind() = %q, want %q", got, tt.kind)
			}
		})
	}
}

func TestNormalizeExtension(t *testing.T) {
	for in, want := range map[string]string{
		"mp4":   ".mp4",
		".MP4":  ".mp4",
		"..wav": ".wav",
		" ":     "",
	} {
		if got := NormalizeExtension(in); got != want {
			t.Errorf("NormalizeExtension(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMediaPairJSONShape(t *testing.T) {
	audio := Local("a1", ".wav")
	p := MediaPair{
		Video:      Remote("https://x/v.mp4", ".mp4"),
		Audio:      &audio,
		Dimensions: &VideoDimensions{Width: 1080, Height: 1350},
	}
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"video":{"remote":{"url":"https://x/v.mp4","extension":".mp4"}},"audio":{"local":{"id":"a1","extension":".wav"}},"dimensions":{"width":1080,"height":1350}}`
	if string(raw) != want {
		t.Errorf("unexpected JSON:\n got %s\nwant %s", raw, want)
	}
}

func TestMediaPairValidateDimensions(t *testing.T) {
	p := MediaPair{Video: Local("v", ".mp4"), Dimensions: &VideoDimensions{Width: 0, Height: 10}}
	if err := p.Validate(); err == nil {
		t.Fatal("expected error for zero width")
	}
}

func TestResolverSource(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "present.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := NewResolver(dir)

	t.Run("local present", func(t *testing.T) {
		got, err := r.Source(Local("present", ".mp4"))
		if err != nil {
			t.Fatal(err)
		}
		if got != filepath.Join(dir, "present.mp4") {
			t.Errorf("unexpected path %s", got)
		}
	})

	t.Run("local missing", func(t *testing.T) {
		_, err := r.Source(Local("missing", ".wav"))
		if !apperrors.IsNotFound(err) {
			t.Fatalf("expected NOT_FOUND, got %v", err)
		}
	})

	t.Run("remote never checked", func(t *testing.T) {
		got, err := r.Source(Remote("https://cdn/x.mp4", ".mp4"))
		if err != nil || got != "https://cdn/x.mp4" {
			t.Fatalf("got %q, %v", got, err)
		}
	})
}

func TestResolvePair(t *testing.T) {
	r := &Resolver{MediaDir: "/media", Exists: func(string) bool { return true }}

	got, err := r.ResolvePair(MediaPair{Video: Local("v", ".mp4")})
	if err != nil {
		t.Fatal(err)
	}
	if got.Video != "/media/v.mp4" || got.Audio != "" {
		t.Errorf("unexpected pair %+v", got)
	}

	missing := &Resolver{MediaDir: "/media", Exists: func(p string) bool { return p != "/media/a.wav" }}
	audio := Local("a", ".wav")
	if _, err := missing.ResolvePair(MediaPair{Video: Local("v", ".mp4"), Audio: &audio}); !apperrors.IsNotFound(err) {
		t.Fatalf("expected NOT_FOUND for missing audio, got %v", err)
	}
}

func TestNewOutputIsFresh(t *testing.T) {
	r := NewResolver("/media")
	a, pa := r.NewOutput("wav")
	b, pb := r.NewOutput("wav")
	if a.Local.ID == b.Local.ID || pa == pb {
		t.Fatal("expected distinct outputs")
	}
	if filepath.Ext(pa) != ".wav" || filepath.Dir(pa) != "/media" {
		t.Errorf("unexpected output path %s", pa)
	}
}

func TestSidecar(t *testing.T) {
	r := NewResolver("/media")
	got, err := r.Sidecar(Local("abc", ".wav"), "srt")
	if err != nil || got != "/media/abc.srt" {
		t.Fatalf("got %q, %v", got, err)
	}
	if _, err := r.Sidecar(Remote("https://x", ".wav"), "srt"); err == nil {
		t.Error("expected error for remote sidecar")
	}
	if got := SidecarPath("/media/abc.wav", "json"); got != "/media/abc.json" {
		t.Errorf("SidecarPath = %s", got)
	}
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "x.mp4")
	if err := os.WriteFile(p, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	r := NewResolver(dir)
	if err := r.Remove(Local("x", ".mp4")); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Error("expected file removed")
	}
	if err := r.Remove(Local("x", ".mp4")); err != nil {
		t.Errorf("second remove should be a no-op, got %v", err)
	}
	if err := r.Remove(Remote("https://x", ".mp4")); err != nil {
		t.Errorf("remote remove should be a no-op, got %v", err)
	}
}

func TestResourceKind(t *testing.T) {
	if FileMP4.ResourceKind() != "video" || FileWAV.ResourceKind() != "video" || FileJSON.ResourceKind() != "raw" {
		t.Error("unexpected resource kinds")
	}
}
