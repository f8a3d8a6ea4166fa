package harvest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelocateDisabled(t *testing.T) {
	r := NewRelocator(RelocationConfig{}, "/src", nil)
	assert.False(t, r.Enabled())
	assert.NoError(t, r.Relocate(context.Background(), Source{Locator: "/src/a.jpg", Kind: SourceLocal}))
}

func TestRelocateFlat(t *testing.T) {
	root := createTestDirectory(t, []string{"sub/one.jpg"})
	dest := t.TempDir()

	r := NewRelocator(RelocationConfig{
		Enabled:     true,
		Destination: dest,
		Structure:   StructureFlat,
	}, root, nil)

	src := Source{Locator: filepath.Join(root, "sub", "one.jpg"), Kind: SourceLocal}
	require.NoError(t, r.Relocate(context.Background(), src))

	data, err := os.ReadFile(filepath.Join(dest, "one.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "test data", string(data))
}

func TestRelocateReplicate(t *testing.T) {
	root := createTestDirectory(t, []string{"2024/march/one.jpg"})
	dest := t.TempDir()

	r := NewRelocator(RelocationConfig{
		Enabled:     true,
		Destination: dest,
		Structure:   StructureReplicate,
	}, root, nil)

	src := Source{Locator: filepath.Join(root, "2024", "march", "one.jpg"), Kind: SourceLocal}
	require.NoError(t, r.Relocate(context.Background(), src))

	_, err := os.Stat(filepath.Join(dest, "2024", "march", "one.jpg"))
	assert.NoError(t, err)
}

func TestRelocateCollisionSuffix(t *testing.T) {
	root := createTestDirectory(t, []string{"a/one.jpg", "b/one.jpg", "c/one.jpg"})
	dest := t.TempDir()

	r := NewRelocator(RelocationConfig{
		Enabled:     true,
		Destination: dest,
		Structure:   StructureFlat,
	}, root, nil)

	for _, sub := range []string{"a", "b", "c"} {
		src := Source{Locator: filepath.Join(root, sub, "one.jpg"), Kind: SourceLocal}
		require.NoError(t, r.Relocate(context.Background(), src))
	}

	for _, name := range []string{"one.jpg", "one (1).jpg", "one (2).jpg"} {
		_, err := os.Stat(filepath.Join(dest, name))
		assert.NoError(t, err, name)
	}
}

func TestRelocateMissingSource(t *testing.T) {
	dest := t.TempDir()
	r := NewRelocator(RelocationConfig{
		Enabled:     true,
		Destination: dest,
		Structure:   StructureFlat,
	}, "/src", nil)

	err := r.Relocate(context.Background(), Source{Locator: "/src/missing.jpg", Kind: SourceLocal})
	assert.Error(t, err)
}
