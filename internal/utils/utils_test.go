package utils

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ralt/extmgr/internal/models"
)

func buildTar(t *testing.T, files map[string]string, dirs ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, d := range dirs {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: d + "/", Typeflag: tar.TypeDir, Mode: 0755}))
	}
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0644, Size: int64(len(content))}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func TestCompressionRoundTrip(t *testing.T) {
	data := []byte("Extension: news\nVersion: 1.0.0\n")
	for _, c := range []Compression{CompressionNone, CompressionGzip, CompressionXz, CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			compressed, err := Compress(data, c)
			require.NoError(t, err)
			assert.Equal(t, c, DetectCompression(compressed))

			plain, err := Decompress(compressed)
			require.NoError(t, err)
			assert.Equal(t, data, plain)
		})
	}
}

func TestVerifySHA256(t *testing.T) {
	data := []byte("archive")
	sum := ChecksumBytes(data)
	assert.Equal(t, int64(len(data)), sum.Size)
	assert.NoError(t, VerifySHA256(data, sum.SHA256))
	assert.NoError(t, VerifySHA256(data, ""))
	assert.Error(t, VerifySHA256(data, "deadbeef"))

	path := filepath.Join(t.TempDir(), "a.tar")
	require.NoError(t, os.WriteFile(path, data, 0644))
	fileSum, err := CalculateChecksums(path)
	require.NoError(t, err)
	assert.Equal(t, sum.SHA256, fileSum.SHA256)
}

func TestExtractArchiveStripsTopDir(t *testing.T) {
	raw := buildTar(t, map[string]string{
		"news/EXTENSION":      "Extension: news\n",
		"news/Classes/Foo.go": "package foo\n",
	}, "news")
	data, err := GzipCompress(raw)
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "news")
	require.NoError(t, ExtractArchive(data, target))

	content, err := os.ReadFile(filepath.Join(target, "Classes", "Foo.go"))
	require.NoError(t, err)
	assert.Equal(t, "package foo\n", string(content))
	assert.FileExists(t, filepath.Join(target, "EXTENSION"))
}

func TestExtractArchiveRootFiles(t *testing.T) {
	data := buildTar(t, map[string]string{
		"EXTENSION":   "Extension: shop\n",
		"lib/cart.go": "package cart\n",
	})

	target := t.TempDir()
	require.NoError(t, ExtractArchive(data, target))
	assert.FileExists(t, filepath.Join(target, "EXTENSION"))
	assert.FileExists(t, filepath.Join(target, "lib", "cart.go"))
}

func TestExtractArchiveRejectsTraversal(t *testing.T) {
	data := buildTar(t, map[string]string{
		"EXTENSION":      "Extension: evil\n",
		"../../escape.x": "boom",
	})

	err := ExtractArchive(data, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes target directory")
}

func TestExtractArchiveSizeLimit(t *testing.T) {
	orig := maxExtractedSize
	t.Cleanup(func() { maxExtractedSize = orig })
	maxExtractedSize = 16

	fits := buildTar(t, map[string]string{
		"EXTENSION": "Extension: a\n",
		"b":         "12",
	})
	require.NoError(t, ExtractArchive(fits, t.TempDir()))

	data, err := GzipCompress(buildTar(t, map[string]string{
		"EXTENSION": "Extension: big\n",
		"payload":   strings.Repeat("x", 64),
	}))
	require.NoError(t, err)

	err = ExtractArchive(data, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expands beyond 16 bytes")
}

func TestReadArchiveFile(t *testing.T) {
	raw := buildTar(t, map[string]string{"news/EXTENSION": "Extension: news\n"}, "news")
	data, err := ZstdCompress(raw)
	require.NoError(t, err)

	content, err := ReadArchiveFile(data, ControlFileName)
	require.NoError(t, err)
	assert.Equal(t, "Extension: news\n", string(content))

	_, err = ReadArchiveFile(data, "missing")
	assert.Error(t, err)
}

func TestMergePackagesReplacesSameIdentity(t *testing.T) {
	existing := []models.Package{
		{Key: "news", Version: "1.0.0", Title: "old"},
		{Key: "shop", Version: "2.0.0"},
	}
	fresh := []models.Package{{Key: "news", Version: "1.0.0", Title: "new"}}

	assert.Len(t, DetectConflicts(existing, fresh), 1)

	merged := MergePackages(existing, fresh)
	require.Len(t, merged, 2)
	assert.Equal(t, "shop", merged[0].Key)
	assert.Equal(t, "new", merged[1].Title)
}
