package scanner

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ralt/extmgr/internal/utils"
)

func tarball(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	content := []byte("Extension: news\n")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "EXTENSION", Mode: 0644, Size: int64(len(content)), Typeflag: tar.TypeReg}))
	_, err := tw.Write(content)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func TestScanDetectsArchives(t *testing.T) {
	dir := t.TempDir()
	raw := tarball(t)

	gz, err := utils.GzipCompress(raw)
	require.NoError(t, err)
	xz, err := utils.XzCompress(raw)
	require.NoError(t, err)
	zst, err := utils.ZstdCompress(raw)
	require.NoError(t, err)

	files := map[string][]byte{
		"news_1.0.0.tar.gz":        gz,
		"sub/shop_2.0.0.tar.xz":    xz,
		"core_8.0.0.tar.zst":       zst,
		"plain_1.0.0.tar":          raw,
		"README.md":                []byte("# readme"),
		"mislabelled_1.0.0.tar.gz": raw,
	}
	for name, data := range files {
		require.NoError(t, utils.WriteFile(filepath.Join(dir, name), data, 0644))
	}

	sc := NewFileSystemScanner()
	found, err := sc.Scan(context.Background(), dir)
	require.NoError(t, err)

	types := make(map[string]ArchiveType)
	for _, a := range found {
		rel, err := filepath.Rel(dir, a.Path)
		require.NoError(t, err)
		types[rel] = a.Type
	}

	assert.Equal(t, map[string]ArchiveType{
		"news_1.0.0.tar.gz":     TypeTarGz,
		"sub/shop_2.0.0.tar.xz": TypeTarXz,
		"core_8.0.0.tar.zst":    TypeTarZst,
		"plain_1.0.0.tar":       TypeTar,
	}, types)
}

func TestScanHonoursCancellation(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.tar"), tarball(t), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFileSystemScanner().Scan(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanSkipsExcludedAndHiddenDirectories(t *testing.T) {
	dir := t.TempDir()
	raw := tarball(t)
	for _, name := range []string{"news_1.0.0.tar", "repo/pool/n/news/news_1.0.0.tar", ".cache/old_1.0.0.tar"} {
		require.NoError(t, utils.WriteFile(filepath.Join(dir, name), raw, 0644))
	}

	found, err := NewFileSystemScanner(filepath.Join(dir, "repo")).Scan(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, filepath.Join(dir, "news_1.0.0.tar"), found[0].Path)
}
