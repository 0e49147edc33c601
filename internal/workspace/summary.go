package workspace

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/tools/go/packages"
)

const maxSummaryPackages = 20

// Summary formats the project context that gets injected into analysis
// prompts. For Go projects the package list is resolved through the
// go/packages loader; other languages get the marker-file classification.
func (w *Workspace) Summary() string {
	info := w.Detect()

	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\nPath: %s", info.Name, info.Root)
	if info.Language != "" {
		fmt.Fprintf(&b, "\nLanguage: %s", info.Language)
	}
	if info.Framework != "" {
		fmt.Fprintf(&b, "\nFramework: %s", info.Framework)
	}

	if info.Language == "Go" {
		if pkgs := w.goPackages(); len(pkgs) > 0 {
			b.WriteString("\nPackages:")
			for _, p := range pkgs {
				fmt.Fprintf(&b, "\n  %s", p)
			}
		}
	}

	return b.String()
}

// goPackages lists package paths with their file counts, capped so a large
// repo cannot blow up the prompt.
func (w *Workspace) goPackages() []string {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles,
		Dir:  w.root,
	}
	pkgs, err := packages.Load(cfg, "./...")
	if err != nil {
		return nil
	}

	var out []string
	for _, p := range pkgs {
		if p.PkgPath == "" || len(p.GoFiles) == 0 {
			continue
		}
		dir := ""
		if rel, err := filepath.Rel(w.root, filepath.Dir(p.GoFiles[0])); err == nil {
			dir = rel
		}
		out = append(out, fmt.Sprintf("%s (%s, %d files)", p.PkgPath, dir, len(p.GoFiles)))
	}

	sort.Strings(out)
	if len(out) > maxSummaryPackages {
		out = append(out[:maxSummaryPackages], fmt.Sprintf("... and %d more", len(out)-maxSummaryPackages))
	}
	return out
}
