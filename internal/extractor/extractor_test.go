package extractor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, dir, name string, width, height int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))))

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func TestExtractStandardFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	e := NewFileExtractor(nil)
	rec, err := e.Extract(context.Background(), path, false)
	require.NoError(t, err)

	assert.Equal(t, "notes.txt", rec.GetString("filename"))
	assert.Equal(t, path, rec.GetString("path"))
	assert.Equal(t, "txt", rec.GetString("extension"))
	size, ok := rec.GetInt64("fileSize")
	require.True(t, ok)
	assert.Equal(t, int64(5), size)
	assert.NotEmpty(t, rec.GetString("modified"))
}

func TestExtractImageDimensions(t *testing.T) {
	dir := t.TempDir()
	path := writePNG(t, dir, "photo.png", 640, 480)

	e := NewFileExtractor(nil)
	rec, err := e.Extract(context.Background(), path, false)
	require.NoError(t, err)

	width, ok := rec.GetInt64("width")
	require.True(t, ok)
	assert.Equal(t, int64(640), width)
	height, ok := rec.GetInt64("height")
	require.True(t, ok)
	assert.Equal(t, int64(480), height)
}

func TestExtractMalformedImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.png")
	require.NoError(t, os.WriteFile(path, []byte("not a png"), 0644))

	e := NewFileExtractor(nil)
	_, err := e.Extract(context.Background(), path, false)
	assert.Error(t, err)
}

func TestExtractMissingFile(t *testing.T) {
	e := NewFileExtractor(nil)
	_, err := e.Extract(context.Background(), "/does/not/exist.jpg", false)
	assert.Error(t, err)
}

func TestExtractRemoteSource(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 10, 20))))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	e := NewFileExtractor(srv.Client())
	rec, err := e.Extract(context.Background(), srv.URL+"/remote.png", true)
	require.NoError(t, err)

	assert.Equal(t, "remote.png", rec.GetString("filename"))
	width, ok := rec.GetInt64("width")
	require.True(t, ok)
	assert.Equal(t, int64(10), width)
}

func TestExtractRemoteErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	e := NewFileExtractor(srv.Client())
	_, err := e.Extract(context.Background(), srv.URL+"/gone.png", true)
	assert.Error(t, err)
}

func TestExtractXMLSidecar(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meta.xml")
	doc := `<record>
  <creditline>Staff photographer</creditline>
  <rights><holder>Museum</holder></rights>
  <creditline>duplicate ignored</creditline>
</record>`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	e := NewFileExtractor(nil)
	rec, err := e.Extract(context.Background(), path, false)
	require.NoError(t, err)

	assert.Equal(t, "Staff photographer", rec.GetString("creditline"))
	assert.Equal(t, "Museum", rec.GetString("rights.holder"))
}

func TestRecordPreservesFieldOrder(t *testing.T) {
	rec := NewRecord()
	names := []string{"zeta", "alpha", "mid"}
	for i, n := range names {
		rec.Set(n, fmt.Sprintf("v%d", i))
	}
	rec.Set("alpha", "updated")

	assert.Equal(t, names, rec.Fields())
	assert.Equal(t, "updated", rec.GetString("alpha"))
	assert.Equal(t, 3, rec.Len())
}
