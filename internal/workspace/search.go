package workspace

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Match is one occurrence of a search pattern.
type Match struct {
	Path string
	Line int
	Text string
}

const (
	searchWorkers  = 8
	maxFileSize    = 1 << 20 // skip files over 1 MiB
	maxMatchedLine = 200
)

// Search scans workspace files for a literal pattern, honoring .gitignore
// and skipping binary-looking and oversized files. Results are sorted by
// path then line so output is stable.
func (w *Workspace) Search(ctx context.Context, pattern string, limit int) ([]Match, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("empty search pattern")
	}
	if limit <= 0 {
		limit = 50
	}

	var candidates []string
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			return nil
		}
		if d.IsDir() {
			if rel != "." && w.ignored(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if w.ignored(rel) {
			return nil
		}
		if info, err := d.Info(); err != nil || info.Size() > maxFileSize {
			return nil
		}
		candidates = append(candidates, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk workspace: %w", err)
	}

	var (
		mu      sync.Mutex
		matches []Match
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(searchWorkers)

	for _, rel := range candidates {
		rel := rel
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			found, err := scanFile(filepath.Join(w.root, rel), rel, pattern)
			if err != nil {
				return nil // unreadable file, keep going
			}
			if len(found) > 0 {
				mu.Lock()
				matches = append(matches, found...)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Path != matches[j].Path {
			return matches[i].Path < matches[j].Path
		}
		return matches[i].Line < matches[j].Line
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func scanFile(path, rel, pattern string) ([]Match, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var matches []Match
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.ContainsRune(line, '\x00') {
			return nil, nil // binary file
		}
		if strings.Contains(line, pattern) {
			text := strings.TrimSpace(line)
			if len(text) > maxMatchedLine {
				text = text[:maxMatchedLine] + "..."
			}
			matches = append(matches, Match{Path: rel, Line: lineNo, Text: text})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return matches, nil
}
