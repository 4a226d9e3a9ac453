package sweeper

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"captionflow/internal/pkg/logger"
)

func TestSweepRemovesOnlyStaleFiles(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-48 * time.Hour)

	write := func(name string, mtime time.Time) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(p, mtime, mtime); err != nil {
			t.Fatal(err)
		}
		return p
	}
	stale := write("a.mp4", old)
	fresh := write("b.wav", time.Now())
	lock := write(".captionflow.lock", old)
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	s := New(dir, 24*time.Hour, logger.Discard())
	n, err := s.Sweep()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("removed %d, want 1", n)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale file should be gone")
	}
	for _, p := range []string{fresh, lock, filepath.Join(dir, "sub")} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s should remain: %v", p, err)
		}
	}
}

func TestSweepMissingDir(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nope"), time.Hour, logger.Discard())
	if n, err := s.Sweep(); err != nil || n != 0 {
		t.Errorf("Sweep() = %d, %v", n, err)
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	s := New(t.TempDir(), time.Hour, logger.Discard())
	if _, err := s.Start("whenever"); err == nil {
		t.Fatal("expected error")
	}
	c, err := s.Start("0 */5 * * * *")
	if err != nil {
		t.Fatal(err)
	}
	<-c.Stop().Done()
}
