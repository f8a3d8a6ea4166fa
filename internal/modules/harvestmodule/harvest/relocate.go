package harvest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Relocator copies passing assets to a destination root, either replicating
// the source's directory layout relative to the session root or flattening
// everything into one directory.
type Relocator struct {
	cfg    RelocationConfig
	root   string
	client *http.Client
}

// NewRelocator creates a relocator for one session. root is the session root
// the replicate layout is computed against; client is used for remote assets
// and defaults to a 30s-timeout client when nil.
func NewRelocator(cfg RelocationConfig, root string, client *http.Client) *Relocator {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Relocator{cfg: cfg, root: root, client: client}
}

// Enabled reports whether relocation is configured for this session
func (r *Relocator) Enabled() bool {
	return r.cfg.Enabled && r.cfg.Destination != ""
}

// Relocate copies one asset to the destination. On a name collision it picks
// a suffixed free name instead of overwriting.
func (r *Relocator) Relocate(ctx context.Context, src Source) error {
	if !r.Enabled() {
		return nil
	}

	rel, err := r.relativePath(src)
	if err != nil {
		return err
	}

	dest := filepath.Join(r.cfg.Destination, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	dest, err = freeDestination(dest)
	if err != nil {
		return err
	}

	if src.Remote() {
		return r.copyRemote(ctx, src.Locator, dest)
	}
	return copyLocal(src.Locator, dest)
}

// relativePath computes the asset's path under the destination root. Flat
// layout keeps just the filename; replicate preserves the path relative to
// the session root.
func (r *Relocator) relativePath(src Source) (string, error) {
	if r.cfg.Structure != StructureReplicate {
		if src.Remote() {
			u, err := url.Parse(src.Locator)
			if err != nil {
				return "", fmt.Errorf("invalid source URL: %w", err)
			}
			return path.Base(u.Path), nil
		}
		return filepath.Base(src.Locator), nil
	}

	if src.Remote() {
		u, err := url.Parse(src.Locator)
		if err != nil {
			return "", fmt.Errorf("invalid source URL: %w", err)
		}
		rootURL, err := url.Parse(r.root)
		if err != nil {
			return "", fmt.Errorf("invalid root URL: %w", err)
		}
		rel := strings.TrimPrefix(u.Path, strings.TrimSuffix(rootURL.Path, "/"))
		return strings.TrimPrefix(rel, "/"), nil
	}

	rel, err := filepath.Rel(r.root, src.Locator)
	if err != nil || strings.HasPrefix(rel, "..") {
		// Outside the root; fall back to the bare filename.
		return filepath.Base(src.Locator), nil
	}
	return filepath.ToSlash(rel), nil
}

// freeDestination returns the first non-existing variant of dest, appending
// " (n)" before the extension starting at n=1.
func freeDestination(dest string) (string, error) {
	if _, err := os.Stat(dest); os.IsNotExist(err) {
		return dest, nil
	} else if err != nil {
		return "", fmt.Errorf("failed to stat destination: %w", err)
	}

	ext := filepath.Ext(dest)
	stem := strings.TrimSuffix(dest, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		} else if err != nil {
			return "", fmt.Errorf("failed to stat destination: %w", err)
		}
	}
}

func copyLocal(srcPath, destPath string) error {
	in, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	return writeDestination(destPath, in)
}

func (r *Relocator) copyRemote(ctx context.Context, srcURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, srcURL)
	}

	return writeDestination(destPath, resp.Body)
}

func writeDestination(destPath string, src io.Reader) error {
	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}

	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(destPath)
		return fmt.Errorf("failed to copy asset: %w", err)
	}
	return out.Close()
}
