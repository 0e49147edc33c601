// Package workspace inspects the working directory to give agents project
// context: what kind of project it is, what files it holds, and where a
// pattern occurs.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// Info describes the detected shape of the project under Root.
type Info struct {
	Root      string
	Name      string
	Language  string
	Framework string
}

// Workspace provides project context rooted at one directory.
type Workspace struct {
	root    string
	matcher *ignore.GitIgnore // nil when no .gitignore is present
}

// languageIndicators maps marker files to a language label.
var languageIndicators = []struct {
	file     string
	language string
}{
	{"go.mod", "Go"},
	{"Cargo.toml", "Rust"},
	{"package.json", "JavaScript/TypeScript"},
	{"pom.xml", "Java"},
	{"setup.py", "Python"},
	{"requirements.txt", "Python"},
	{"pyproject.toml", "Python"},
}

// New creates a workspace rooted at dir.
func New(dir string) (*Workspace, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", dir)
	}

	ws := &Workspace{root: abs}
	if matcher, err := ignore.CompileIgnoreFile(filepath.Join(abs, ".gitignore")); err == nil {
		ws.matcher = matcher
	}
	return ws, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string { return w.root }

// Detect inspects marker files to classify the project.
func (w *Workspace) Detect() Info {
	info := Info{
		Root: w.root,
		Name: filepath.Base(w.root),
	}

	for _, ind := range languageIndicators {
		if _, err := os.Stat(filepath.Join(w.root, ind.file)); err == nil {
			info.Language = ind.language
			break
		}
	}

	if data, err := os.ReadFile(filepath.Join(w.root, "package.json")); err == nil {
		content := string(data)
		switch {
		case strings.Contains(content, `"react"`):
			info.Framework = "React"
		case strings.Contains(content, `"vue"`):
			info.Framework = "Vue"
		case strings.Contains(content, `"next"`):
			info.Framework = "Next.js"
		}
	}

	return info
}

// List returns the entries of a directory relative to the root, each
// suffixed with its kind the way the original listing formatted them.
func (w *Workspace) List(rel string) ([]string, error) {
	dir := w.abs(rel)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", rel, err)
	}

	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		kind := "file"
		if entry.IsDir() {
			kind = "dir"
		}
		out = append(out, fmt.Sprintf("%s (%s)", entry.Name(), kind))
	}
	return out, nil
}

// ignored reports whether a path (relative to root) should be skipped.
func (w *Workspace) ignored(rel string) bool {
	base := filepath.Base(rel)
	if base == ".git" || base == "node_modules" {
		return true
	}
	if w.matcher != nil && w.matcher.MatchesPath(rel) {
		return true
	}
	return false
}

func (w *Workspace) abs(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(w.root, rel)
}
