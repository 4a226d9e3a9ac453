package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"captionflow/internal/config"
)

func TestRunAll(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.MediaDir = dir
	cfg.Preflight.MinFreeMiB = 10

	c := Checker{
		LookPath: func(cmd string) (string, error) {
			if cmd == "ffmpeg" {
				return "/usr/bin/ffmpeg", nil
			}
			return "", errors.New("not found")
		},
		Statfs: func(string) (uint64, error) { return 5 << 20, nil },
	}

	results := c.RunAll(context.Background(), &cfg)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	failed := Failed(results)
	if len(failed) != 2 {
		t.Fatalf("expected whisper and disk to fail, got %+v", failed)
	}
	if failed[0].Name != "whisper" || failed[1].Name != "Media disk" {
		t.Errorf("unexpected failures %+v", failed)
	}
	if Summary(failed) == "" {
		t.Error("expected summary")
	}
}

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()
	if r := CheckDirectoryAccess("media", dir); !r.Passed {
		t.Errorf("expected pass, got %+v", r)
	}
	if r := CheckDirectoryAccess("media", filepath.Join(dir, "missing")); r.Passed {
		t.Error("missing dir must fail")
	}
	f := filepath.Join(dir, "file")
	_ = os.WriteFile(f, nil, 0o644)
	if r := CheckDirectoryAccess("media", f); r.Passed {
		t.Error("a file is not a directory")
	}
}

func TestFreeSpaceOnRealDisk(t *testing.T) {
	r := New().CheckFreeSpace("tmp", t.TempDir(), 1)
	if !r.Passed {
		t.Errorf("expected at least one byte free: %+v", r)
	}
}
