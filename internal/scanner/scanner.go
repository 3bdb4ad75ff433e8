package scanner

import "context"

// ArchiveType represents the container format of an extension archive
type ArchiveType int

const (
	TypeUnknown ArchiveType = iota
	TypeTar
	TypeTarGz
	TypeTarXz
	TypeTarZst
)

// String returns the string representation of ArchiveType
func (at ArchiveType) String() string {
	switch at {
	case TypeTar:
		return "tar"
	case TypeTarGz:
		return "tar.gz"
	case TypeTarXz:
		return "tar.xz"
	case TypeTarZst:
		return "tar.zst"
	default:
		return "unknown"
	}
}

// ScannedArchive represents an extension archive found during scanning
type ScannedArchive struct {
	Path string
	Type ArchiveType
	Size int64
}

// Scanner interface for detecting and scanning extension archives
type Scanner interface {
	// Scan recursively scans a directory for extension archives
	Scan(ctx context.Context, dir string) ([]ScannedArchive, error)

	// DetectType determines the archive type of a file
	DetectType(path string) (ArchiveType, error)
}
