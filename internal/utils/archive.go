package utils

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ControlFileName is the metadata file every extension archive carries at its root
const ControlFileName = "EXTENSION"

// maxExtractedSize bounds the decompressed bytes written by one extraction
var maxExtractedSize int64 = 2 << 30

// openTar returns a tar reader over a possibly compressed archive
func openTar(data []byte) (*tar.Reader, func(), error) {
	r, closeFn, err := NewDecompressor(bytes.NewReader(data), DetectCompression(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open archive: %w", err)
	}
	return tar.NewReader(r), closeFn, nil
}

// ReadArchiveFile returns the content of the entry called name, ignoring a
// single leading directory
func ReadArchiveFile(data []byte, name string) ([]byte, error) {
	tr, closeFn, err := openTar(data)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		entry := strings.TrimPrefix(filepath.ToSlash(filepath.Clean(header.Name)), "./")
		if entry == name || (strings.HasSuffix(entry, "/"+name) && strings.Count(entry, "/") == 1) {
			return io.ReadAll(tr)
		}
	}

	return nil, fmt.Errorf("%s not found in archive", name)
}

// archiveTopDir returns the single top-level directory shared by all
// entries, or "" when entries live at the archive root
func archiveTopDir(data []byte) (string, error) {
	tr, closeFn, err := openTar(data)
	if err != nil {
		return "", err
	}
	defer closeFn()

	var topDir string
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		name := filepath.ToSlash(filepath.Clean(header.Name))
		if name == "." {
			continue
		}
		first := name
		if idx := strings.Index(name, "/"); idx >= 0 {
			first = name[:idx]
		} else if header.Typeflag != tar.TypeDir {
			// A regular file at the root means there is nothing to strip
			return "", nil
		}
		if topDir == "" {
			topDir = first
		} else if topDir != first {
			return "", nil
		}
	}
	return topDir, nil
}

// ExtractArchive unpacks a tar archive (plain, gzip, xz or zstd) into
// targetDir. A single top-level directory is stripped. Entries escaping
// targetDir are rejected, as are archives expanding beyond maxExtractedSize.
func ExtractArchive(data []byte, targetDir string) error {
	topDir, err := archiveTopDir(data)
	if err != nil {
		return err
	}

	tr, closeFn, err := openTar(data)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := EnsureDir(targetDir); err != nil {
		return err
	}
	root, err := filepath.Abs(targetDir)
	if err != nil {
		return err
	}

	budget := maxExtractedSize
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		name := filepath.ToSlash(filepath.Clean(header.Name))
		if topDir != "" {
			if name == topDir {
				continue
			}
			name = strings.TrimPrefix(name, topDir+"/")
		}
		if name == "." || name == "" {
			continue
		}

		dest := filepath.Join(root, filepath.FromSlash(name))
		if dest != root && !strings.HasPrefix(dest, root+string(filepath.Separator)) {
			return fmt.Errorf("archive entry %q escapes target directory", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := EnsureDir(dest); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := EnsureDir(filepath.Dir(dest)); err != nil {
				return err
			}
			f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode)&0755|0600)
			if err != nil {
				return err
			}
			n, err := io.Copy(f, io.LimitReader(tr, budget+1))
			if err != nil {
				f.Close()
				return err
			}
			budget -= n
			if budget < 0 {
				f.Close()
				return fmt.Errorf("archive expands beyond %d bytes", maxExtractedSize)
			}
			if err := f.Close(); err != nil {
				return err
			}
		default:
			// Links and devices are not part of extension archives
			continue
		}
	}

	return nil
}
