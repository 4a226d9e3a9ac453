// Package preflight checks the host before a worker starts taking jobs:
// tool binaries on PATH, a writable media directory and enough free disk.
package preflight

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"

	"captionflow/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Checker holds the host probes; tests replace them.
type Checker struct {
	LookPath func(string) (string, error)
	Statfs   func(path string) (free uint64, err error)
}

func New() Checker {
	return Checker{LookPath: exec.LookPath, Statfs: realStatfs}
}

// RunAll executes every check for cfg.
func (c Checker) RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	return []Result{
		c.CheckBinary("ffmpeg", cfg.Tools.FFmpeg),
		c.CheckBinary("whisper", cfg.Tools.Whisper),
		CheckDirectoryAccess("Media directory", cfg.Paths.MediaDir),
		c.CheckFreeSpace("Media disk", cfg.Paths.MediaDir, uint64(cfg.Preflight.MinFreeMiB)*1024*1024),
	}
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// Summary joins failed results into one line for logs.
func Summary(results []Result) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Name+": "+r.Detail)
	}
	return strings.Join(parts, "; ")
}

func (c Checker) CheckBinary(name, command string) Result {
	path, err := c.LookPath(command)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s not found on PATH", command)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace fails when the filesystem holding path has less than min
// bytes available. A zero min disables the check.
func (c Checker) CheckFreeSpace(name, path string, min uint64) Result {
	if min == 0 {
		return Result{Name: name, Passed: true, Detail: "disabled"}
	}
	free, err := c.Statfs(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("statfs %s: %v", path, err)}
	}
	detail := fmt.Sprintf("%d MiB free, %d MiB required", free>>20, min>>20)
	return Result{Name: name, Passed: free >= min, Detail: detail}
}

func realStatfs(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
