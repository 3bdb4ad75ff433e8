// Package index builds and reads the static extension repository index.
package index

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/ralt/extmgr/internal/models"
	"github.com/ralt/extmgr/internal/signer"
	"github.com/ralt/extmgr/internal/utils"
	"github.com/sirupsen/logrus"
)

// Index file names, relative to the repository root
const (
	IndexFile       = "Extensions"
	SignatureFile   = "Extensions.gpg"
	SignedIndexFile = "InExtensions"
	ReleaseFile     = "Release"
	PoolDir         = "pool"
)

// IndexCompressions lists the compressed index variants written next to
// the plain index, in the order clients should try them
var IndexCompressions = []utils.Compression{utils.CompressionZstd, utils.CompressionXz, utils.CompressionGzip}

// Generator writes extension repositories
type Generator struct {
	signer signer.Signer
	now    func() time.Time
}

// NewGenerator creates a new repository generator. s may be nil for an
// unsigned repository.
func NewGenerator(s signer.Signer) *Generator {
	return &Generator{
		signer: s,
		now:    time.Now,
	}
}

// Generate copies archives into the pool and writes the index files
func (g *Generator) Generate(ctx context.Context, config *models.IndexConfig, packages []models.Package) error {
	logrus.Info("Generating extension repository...")

	if err := utils.EnsureDir(config.OutputDir); err != nil {
		return err
	}

	// Copy packages to pool and update filenames
	for i := range packages {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pkg := &packages[i]
		if err := g.copyToPool(config, pkg); err != nil {
			return err
		}
	}

	if config.Incremental {
		existing, err := ParseExisting(config.OutputDir)
		if err != nil {
			logrus.Debugf("No existing index to merge: %v", err)
		} else {
			for _, c := range utils.DetectConflicts(existing, packages) {
				logrus.Warnf("Replacing existing index entry %s", utils.PackageIdentity(c))
			}
			packages = utils.MergePackages(existing, packages)
			logrus.Infof("Merged with %d existing index entries", len(existing))
		}
	}

	indexData := FormatControl(packages)
	if err := g.writeIndex(config, indexData); err != nil {
		return err
	}

	if err := g.writeRelease(config); err != nil {
		return fmt.Errorf("failed to generate Release: %w", err)
	}

	if err := g.sign(config, indexData); err != nil {
		return err
	}

	logrus.Infof("Extension repository generated successfully (%d extensions)", len(packages))
	return nil
}

// copyToPool places an archive under pool/<letter>/<key>/ and rewrites its
// Filename relative to the repository root
func (g *Generator) copyToPool(config *models.IndexConfig, pkg *models.Package) error {
	if pkg.Key == "" {
		return fmt.Errorf("extension missing key: %s", pkg.Filename)
	}

	// Determine pool subdirectory (first letter of extension key)
	firstLetter := strings.ToLower(pkg.Key[:1])
	if firstLetter < "a" || firstLetter > "z" {
		firstLetter = "0"
	}

	pkgDir := filepath.Join(config.OutputDir, PoolDir, firstLetter, pkg.Key)
	if err := utils.EnsureDir(pkgDir); err != nil {
		return err
	}

	dstPath := filepath.Join(pkgDir, filepath.Base(pkg.Filename))
	if err := utils.CopyFile(pkg.Filename, dstPath); err != nil {
		return fmt.Errorf("failed to copy %s: %w", pkg.Filename, err)
	}

	relPath, err := filepath.Rel(config.OutputDir, dstPath)
	if err != nil {
		return err
	}
	pkg.Filename = filepath.ToSlash(relPath)
	return nil
}

func (g *Generator) writeIndex(config *models.IndexConfig, data []byte) error {
	indexPath := filepath.Join(config.OutputDir, IndexFile)
	if err := utils.WriteFileAtomic(indexPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", IndexFile, err)
	}

	for _, c := range IndexCompressions {
		compressed, err := utils.Compress(data, c)
		if err != nil {
			return fmt.Errorf("failed to compress %s with %s: %w", IndexFile, c, err)
		}
		if err := utils.WriteFileAtomic(indexPath+c.Extension(), compressed, 0644); err != nil {
			return fmt.Errorf("failed to write %s%s: %w", IndexFile, c.Extension(), err)
		}
	}
	return nil
}

// writeRelease lists the index files with their sizes and SHA-256 digests
func (g *Generator) writeRelease(config *models.IndexConfig) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Origin: %s\n", config.Origin)
	fmt.Fprintf(&buf, "Label: %s\n", config.Label)
	fmt.Fprintf(&buf, "Date: %s\n", g.now().UTC().Format(time.RFC1123Z))

	files := []string{IndexFile}
	for _, c := range IndexCompressions {
		files = append(files, IndexFile+c.Extension())
	}

	buf.WriteString("SHA256:\n")
	for _, file := range files {
		checksum, err := utils.CalculateChecksums(filepath.Join(config.OutputDir, file))
		if err != nil {
			return fmt.Errorf("failed to calculate checksum for %s: %w", file, err)
		}
		fmt.Fprintf(&buf, " %s %d %s\n", checksum.SHA256, checksum.Size, file)
	}

	return utils.WriteFileAtomic(filepath.Join(config.OutputDir, ReleaseFile), buf.Bytes(), 0644)
}

// sign writes InExtensions and Extensions.gpg. Unsigned repositories get an
// InExtensions identical to Extensions.
func (g *Generator) sign(config *models.IndexConfig, indexData []byte) error {
	signedPath := filepath.Join(config.OutputDir, SignedIndexFile)

	if g.signer == nil {
		if err := utils.WriteFile(signedPath, indexData, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", SignedIndexFile, err)
		}
		// A stale signature from a previous signed run would no longer match
		if err := os.Remove(filepath.Join(config.OutputDir, SignatureFile)); err != nil && !os.IsNotExist(err) {
			return err
		}
		logrus.Warn("No signer configured, repository will be unsigned")
		return nil
	}

	cleartext, err := g.signer.SignCleartext(indexData)
	if err != nil {
		return &models.ExtMgrError{Type: models.ErrSigning, Err: fmt.Errorf("failed to sign %s: %w", SignedIndexFile, err)}
	}
	if err := utils.WriteFile(signedPath, cleartext, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", SignedIndexFile, err)
	}

	detached, err := g.signer.SignDetached(indexData)
	if err != nil {
		return &models.ExtMgrError{Type: models.ErrSigning, Err: fmt.Errorf("failed to create %s: %w", SignatureFile, err)}
	}
	if err := utils.WriteFile(filepath.Join(config.OutputDir, SignatureFile), detached, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", SignatureFile, err)
	}

	logrus.Info("Extension index signed successfully")
	return nil
}

// ValidatePackages checks that every archive carries usable metadata
func (g *Generator) ValidatePackages(packages []models.Package) error {
	seen := make(map[string]string)
	for _, pkg := range packages {
		if pkg.Key == "" {
			return fmt.Errorf("extension missing key: %s", pkg.Filename)
		}
		if pkg.Version == "" {
			return fmt.Errorf("extension %s missing version", pkg.Key)
		}
		if _, err := semver.NewVersion(pkg.Version); err != nil {
			return fmt.Errorf("extension %s has invalid version %q: %w", pkg.Key, pkg.Version, err)
		}
		for _, dep := range pkg.Dependencies {
			if dep.Constraint == "" {
				continue
			}
			if _, err := semver.NewConstraint(dep.Constraint); err != nil {
				return fmt.Errorf("extension %s: invalid constraint %q for %s: %w", pkg.Key, dep.Constraint, dep.Key, err)
			}
		}
		if other, ok := seen[pkg.ID()]; ok {
			return fmt.Errorf("extension %s provided by both %s and %s", pkg.ID(), other, pkg.Filename)
		}
		seen[pkg.ID()] = pkg.Filename
	}
	return nil
}

// ParseExisting reads the plain or compressed index of an existing repository
func ParseExisting(outputDir string) ([]models.Package, error) {
	indexPath := filepath.Join(outputDir, IndexFile)
	if data, err := os.ReadFile(indexPath); err == nil {
		return ParseControl(bytes.NewReader(data))
	}

	for _, c := range IndexCompressions {
		data, err := os.ReadFile(indexPath + c.Extension())
		if err != nil {
			continue
		}
		plain, err := utils.Decompress(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress %s%s: %w", IndexFile, c.Extension(), err)
		}
		return ParseControl(bytes.NewReader(plain))
	}

	return nil, fmt.Errorf("no existing extension index found in %s", outputDir)
}
