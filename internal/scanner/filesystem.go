package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// FileSystemScanner finds extension archives below a directory. Hidden
// directories and the excluded directories are not descended into.
type FileSystemScanner struct {
	exclude map[string]bool
}

// NewFileSystemScanner creates a scanner skipping the exclude directories,
// typically the output directory of an index build
func NewFileSystemScanner(exclude ...string) *FileSystemScanner {
	s := &FileSystemScanner{exclude: map[string]bool{}}
	for _, dir := range exclude {
		if abs, err := filepath.Abs(dir); err == nil {
			s.exclude[abs] = true
		}
	}
	return s
}

func (s *FileSystemScanner) skipDir(path string, root bool) bool {
	if !root && strings.HasPrefix(filepath.Base(path), ".") {
		return true
	}
	abs, err := filepath.Abs(path)
	return err == nil && s.exclude[abs]
}

// Scan walks dir and returns every archive with a recognized type
func (s *FileSystemScanner) Scan(ctx context.Context, dir string) ([]ScannedArchive, error) {
	var archives []ScannedArchive

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if s.skipDir(path, path == dir) {
				logrus.Debugf("Skipping directory %s", path)
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		archiveType, err := s.DetectType(path)
		if err != nil {
			logrus.Warnf("Failed to detect type for %s: %v", path, err)
			return nil
		}
		if archiveType == TypeUnknown {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		logrus.Debugf("Found %s archive: %s", archiveType, path)
		archives = append(archives, ScannedArchive{Path: path, Type: archiveType, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	logrus.Infof("Found %d extension archives in %s", len(archives), dir)
	return archives, nil
}

// DetectType determines the archive type of a file
func (s *FileSystemScanner) DetectType(path string) (ArchiveType, error) {
	return DetectArchiveType(path)
}
