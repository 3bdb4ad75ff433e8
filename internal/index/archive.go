package index

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ralt/extmgr/internal/models"
	"github.com/ralt/extmgr/internal/utils"
)

// ParseArchive reads an extension archive and returns its metadata. The
// control file must hold exactly one stanza. Filename is set to path.
func ParseArchive(path string) (*models.Package, error) {
	// Calculate checksums
	checksums, err := utils.CalculateChecksums(path)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate checksums: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	control, err := utils.ReadArchiveFile(data, utils.ControlFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract control: %w", err)
	}

	packages, err := ParseControl(bytes.NewReader(control))
	if err != nil {
		return nil, fmt.Errorf("failed to parse control: %w", err)
	}
	if len(packages) != 1 {
		return nil, fmt.Errorf("control file of %s holds %d stanzas, expected 1", path, len(packages))
	}

	pkg := packages[0]
	pkg.Filename = path
	pkg.Size = checksums.Size
	pkg.SHA256Sum = checksums.SHA256
	return &pkg, nil
}
