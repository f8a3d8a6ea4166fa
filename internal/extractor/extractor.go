// Package extractor produces metadata records for harvested sources. The
// engine treats records as opaque beyond the fields the filter reads; this
// package owns what actually goes in them.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
)

// Extractor produces a metadata record for one source locator. Implementations
// must be side-effect-free on failure.
type Extractor interface {
	Extract(ctx context.Context, locator string, remote bool) (*Record, error)
}

// maxRemoteBytes caps how much of a remote asset is pulled for metadata
// decoding.
const maxRemoteBytes = 64 << 20

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".tif": true, ".tiff": true,
}

var audioExtensions = map[string]bool{
	".mp3": true, ".flac": true, ".m4a": true, ".ogg": true,
}

// FileExtractor is the built-in extractor: it reads a local file or fetches a
// remote URL, fills the standard asset fields, and enriches the record based
// on the file type (image dimensions, audio tags, flattened XML).
type FileExtractor struct {
	client *http.Client
}

// NewFileExtractor creates a FileExtractor with the given HTTP client; a nil
// client gets a 30s-timeout default.
func NewFileExtractor(client *http.Client) *FileExtractor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &FileExtractor{client: client}
}

// Extract implements Extractor
func (e *FileExtractor) Extract(ctx context.Context, locator string, remote bool) (*Record, error) {
	var (
		data    []byte
		size    int64
		modTime time.Time
		name    string
		err     error
	)

	if remote {
		name = path.Base(locator)
		data, size, err = e.fetch(ctx, locator)
	} else {
		name = filepath.Base(locator)
		data, size, modTime, err = readLocal(locator)
	}
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(name))

	record := NewRecord()
	record.Set("filename", name)
	record.Set("path", locator)
	record.Set("extension", strings.TrimPrefix(ext, "."))
	record.Set("fileSize", size)
	if !modTime.IsZero() {
		record.Set("modified", modTime.UTC().Format(time.RFC3339))
	}

	switch {
	case imageExtensions[ext]:
		if err := decodeImageFields(record, data); err != nil {
			return nil, fmt.Errorf("malformed image %s: %w", name, err)
		}
	case audioExtensions[ext]:
		if err := decodeAudioFields(record, data); err != nil {
			return nil, fmt.Errorf("malformed audio %s: %w", name, err)
		}
	case ext == ".xml":
		if err := decodeXMLFields(record, data); err != nil {
			return nil, fmt.Errorf("malformed xml %s: %w", name, err)
		}
	}

	return record, nil
}

func (e *FileExtractor) fetch(ctx context.Context, url string) ([]byte, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read %s: %w", url, err)
	}

	return data, int64(len(data)), nil
}

func readLocal(p string) ([]byte, int64, time.Time, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, 0, time.Time{}, fmt.Errorf("failed to stat %s: %w", p, err)
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, 0, time.Time{}, fmt.Errorf("failed to read %s: %w", p, err)
	}

	return data, info.Size(), info.ModTime(), nil
}

func decodeImageFields(record *Record, data []byte) error {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		// TIFF is not registered with image; dimensions stay absent but the
		// record is still valid.
		ext := record.GetString("extension")
		if ext == "tif" || ext == "tiff" {
			return nil
		}
		return err
	}

	record.Set("width", int64(cfg.Width))
	record.Set("height", int64(cfg.Height))
	record.Set("format", format)
	return nil
}

func decodeAudioFields(record *Record, data []byte) error {
	meta, err := tag.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return err
	}

	record.Set("title", meta.Title())
	record.Set("artist", meta.Artist())
	record.Set("album", meta.Album())
	record.Set("genre", meta.Genre())
	if meta.Year() > 0 {
		record.Set("year", int64(meta.Year()))
	}
	return nil
}

func toString(v interface{}) string {
	return fmt.Sprint(v)
}
