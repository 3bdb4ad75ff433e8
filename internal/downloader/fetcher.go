package downloader

import (
	"context"
	"fmt"
	"os"

	"github.com/ralt/extmgr/internal/models"
	"github.com/ralt/extmgr/internal/utils"
	"github.com/sirupsen/logrus"
)

// Fetcher downloads extension archives
type Fetcher interface {
	Fetch(ctx context.Context, pkg models.Package) ([]byte, error)
}

// Downloader fetches archives from a Source and checks their integrity
type Downloader struct {
	source Source
}

// New creates a Downloader reading from source
func New(source Source) *Downloader {
	return &Downloader{source: source}
}

// Fetch returns the archive bytes of pkg after verifying size and SHA-256
func (d *Downloader) Fetch(ctx context.Context, pkg models.Package) ([]byte, error) {
	if pkg.Filename == "" {
		return nil, models.NewError(models.ErrDownload, pkg.Key, models.CodeDownloadFailed,
			"%s has no archive in the repository", pkg.ID())
	}

	logrus.WithFields(logrus.Fields{
		"extension": pkg.Key,
		"version":   pkg.Version,
	}).Debugf("Fetching %s from %s", pkg.Filename, d.source.Location())

	data, err := d.source.Read(ctx, pkg.Filename)
	if err != nil {
		return nil, &models.ExtMgrError{
			Type:    models.ErrDownload,
			Package: pkg.Key,
			Code:    models.CodeDownloadFailed,
			Err:     fmt.Errorf("failed to download %s: %w", pkg.ID(), err),
		}
	}

	if pkg.Size > 0 && int64(len(data)) != pkg.Size {
		return nil, models.NewError(models.ErrIntegrity, pkg.Key, models.CodeChecksumMismatch,
			"size mismatch for %s: expected %d, got %d", pkg.ID(), pkg.Size, len(data))
	}
	if err := utils.VerifySHA256(data, pkg.SHA256Sum); err != nil {
		return nil, &models.ExtMgrError{
			Type:    models.ErrIntegrity,
			Package: pkg.Key,
			Code:    models.CodeChecksumMismatch,
			Err:     fmt.Errorf("%s: %w", pkg.ID(), err),
		}
	}

	return data, nil
}

// Extract unpacks archive data into targetDir, replacing its content
func Extract(pkg models.Package, data []byte, targetDir string) error {
	staging := targetDir + ".tmp"
	if err := os.RemoveAll(staging); err != nil {
		return err
	}
	if err := utils.ExtractArchive(data, staging); err != nil {
		_ = os.RemoveAll(staging)
		return &models.ExtMgrError{
			Type:    models.ErrInstallFailure,
			Package: pkg.Key,
			Code:    models.CodeExtractFailed,
			Err:     fmt.Errorf("failed to extract %s into %s: %w", pkg.ID(), targetDir, err),
		}
	}
	if err := utils.ReplaceDir(staging, targetDir); err != nil {
		_ = os.RemoveAll(staging)
		return &models.ExtMgrError{
			Type:    models.ErrFileOp,
			Package: pkg.Key,
			Code:    models.CodeExtractFailed,
			Err:     fmt.Errorf("failed to move %s into place: %w", pkg.ID(), err),
		}
	}
	return nil
}
