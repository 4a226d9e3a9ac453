// Package sweeper removes media artifacts left behind by failed or
// abandoned workflows.
package sweeper

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"captionflow/internal/pkg/logger"
)

// Sweeper deletes regular files in Dir older than MaxAge. Dotfiles (the
// pipeline lock, provisioning locks) and subdirectories are never touched.
type Sweeper struct {
	Dir    string
	MaxAge time.Duration
	Log    *logger.Logger

	now func() time.Time
}

func New(dir string, maxAge time.Duration, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Sweeper{Dir: dir, MaxAge: maxAge, Log: log.WithComponent("sweeper"), now: time.Now}
}

// Sweep runs one pass and returns how many files were removed.
func (s *Sweeper) Sweep() (int, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := s.now().Add(-s.MaxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		p := filepath.Join(s.Dir, e.Name())
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.Log.Warn("failed to remove stale artifact", "path", p, "error", err.Error())
			continue
		}
		removed++
	}
	return removed, nil
}

// Start schedules Sweep on spec (six-field cron with seconds) and returns
// the running scheduler. Stop it on shutdown.
func (s *Sweeper) Start(spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithSeconds())
	_, err := c.AddFunc(spec, func() {
		n, err := s.Sweep()
		if err != nil {
			s.Log.Error("sweep failed", "error", err.Error())
			return
		}
		if n > 0 {
			s.Log.Info("stale artifacts removed", "count", n, "max_age", s.MaxAge.String())
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
