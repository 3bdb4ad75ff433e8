package scanner

import (
	"os"
	"strings"

	"github.com/ralt/extmgr/internal/utils"
)

// tarMagic appears at offset 257 of every POSIX tar header
var tarMagic = []byte("ustar")

// archiveSuffixes maps file name suffixes to archive types
var archiveSuffixes = []struct {
	suffix string
	typ    ArchiveType
}{
	{".tar.gz", TypeTarGz},
	{".tgz", TypeTarGz},
	{".tar.xz", TypeTarXz},
	{".txz", TypeTarXz},
	{".tar.zst", TypeTarZst},
	{".tar", TypeTar},
}

// DetectArchiveType determines the archive type based on magic bytes and file extension
func DetectArchiveType(path string) (ArchiveType, error) {
	f, err := os.Open(path)
	if err != nil {
		return TypeUnknown, err
	}
	defer f.Close()

	// Read first 512 bytes for magic byte detection
	header := make([]byte, 512)
	n, err := f.Read(header)
	if err != nil && n == 0 {
		return TypeUnknown, err
	}
	header = header[:n]

	var byName ArchiveType
	lower := strings.ToLower(path)
	for _, s := range archiveSuffixes {
		if strings.HasSuffix(lower, s.suffix) {
			byName = s.typ
			break
		}
	}
	if byName == TypeUnknown {
		return TypeUnknown, nil
	}

	// The suffix must agree with the content, otherwise the file is skipped
	switch utils.DetectCompression(header) {
	case utils.CompressionGzip:
		if byName == TypeTarGz {
			return TypeTarGz, nil
		}
	case utils.CompressionXz:
		if byName == TypeTarXz {
			return TypeTarXz, nil
		}
	case utils.CompressionZstd:
		if byName == TypeTarZst {
			return TypeTarZst, nil
		}
	default:
		if byName == TypeTar && len(header) > 262 && string(header[257:262]) == string(tarMagic) {
			return TypeTar, nil
		}
	}

	return TypeUnknown, nil
}
