package harvest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mantonx/harvester/internal/logger"
)

// Enumerator produces the ordered source list for a session root. Local roots
// are walked on disk; remote roots are crawled over HTTP by the Crawler.
type Enumerator struct {
	crawler *Crawler
}

// NewEnumerator creates an enumerator using the given crawler for remote
// roots.
func NewEnumerator(crawler *Crawler) *Enumerator {
	return &Enumerator{crawler: crawler}
}

// Enumerate returns the full ordered source list for the configured root.
// Partial failures (unreadable directories, failed listing pages) are logged
// and skipped; only a completely unreachable root is an error.
func (e *Enumerator) Enumerate(cfg SessionConfig) ([]Source, error) {
	if cfg.Remote {
		return e.crawler.Crawl(cfg.Root, cfg.Extensions, cfg.CrawlDepth, cfg.CrawlFileCap)
	}
	return enumerateLocal(cfg.Root, cfg.Extensions)
}

// enumerateLocal walks the directory tree in traversal order. Symbolic-link
// directories are not descended, which also breaks link cycles.
func enumerateLocal(root string, extensions []string) ([]Source, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root unreachable: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", root)
	}

	match := extensionSet(extensions)
	var sources []Source

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("Skipping unreadable path %s: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			// WalkDir does not follow symlinked directories, but they still
			// show up as non-dir entries; nothing extra to do here.
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		if matchesExtension(d.Name(), match) {
			sources = append(sources, Source{Locator: path, Kind: SourceLocal})
		}

		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, walkErr)
	}

	return sources, nil
}

// extensionSet normalizes a list of extensions (with or without leading dots)
// into a lowercase lookup set. The tif/tiff pair is treated as one type.
func extensionSet(extensions []string) map[string]bool {
	if len(extensions) == 0 {
		return nil
	}
	set := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext == "" {
			continue
		}
		set[ext] = true
		if ext == "tif" {
			set["tiff"] = true
		} else if ext == "tiff" {
			set["tif"] = true
		}
	}
	return set
}

// matchesExtension reports whether the filename's extension is in the target
// set. An empty set matches everything with an extension.
func matchesExtension(name string, set map[string]bool) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" {
		return false
	}
	if set == nil {
		return true
	}
	return set[ext]
}
