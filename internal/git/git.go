package git

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Exposure describes how git sees a file.
type Exposure struct {
	IsRepo  bool
	Tracked bool
	Ignored bool
}

// Exposed reports whether the file could be committed by accident.
func (e Exposure) Exposed() bool {
	return e.IsRepo && (e.Tracked || !e.Ignored)
}

// IsRepo checks if dir is inside a git work tree
func IsRepo(dir string) bool {
	cmd := exec.Command("git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = dir
	return cmd.Run() == nil
}

// IsTracked checks if a file is tracked by git
func IsTracked(dir, name string) bool {
	cmd := exec.Command("git", "ls-files", "--", name)
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(output))) > 0
}

// IsIgnored checks if a file is ignored by git (handles all .gitignore files)
func IsIgnored(dir, name string) bool {
	cmd := exec.Command("git", "check-ignore", "-q", "--", name)
	cmd.Dir = dir
	// exit code 0 means ignored
	return cmd.Run() == nil
}

// Check inspects path relative to its own directory. A missing git
// binary reports the file as outside any repository.
func Check(path string) Exposure {
	if _, err := exec.LookPath("git"); err != nil {
		return Exposure{}
	}
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	if !IsRepo(dir) {
		return Exposure{}
	}
	return Exposure{
		IsRepo:  true,
		Tracked: IsTracked(dir, name),
		Ignored: IsIgnored(dir, name),
	}
}

// Warning returns a user facing warning for an exposed file, or "".
func Warning(path string, e Exposure) string {
	switch {
	case !e.Exposed():
		return ""
	case e.Tracked:
		return fmt.Sprintf("warning: %s is tracked by git (run: git rm --cached %s)\n", path, path)
	default:
		return fmt.Sprintf("warning: %s is not in .gitignore\n", path)
	}
}
