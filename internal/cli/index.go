package cli

import (
	"context"
	"fmt"

	"github.com/ralt/extmgr/internal/index"
	"github.com/ralt/extmgr/internal/messages"
	"github.com/ralt/extmgr/internal/models"
	"github.com/ralt/extmgr/internal/scanner"
	"github.com/ralt/extmgr/internal/signer"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewIndexCmd creates the index command
func NewIndexCmd() *cobra.Command {
	var config models.IndexConfig

	cmd := &cobra.Command{
		Use:   "index",
		Short: messages.IndexShort,
		Long: `Scans the input directory for extension archives and generates an
extension repository with a compressed index, a Release file and
optional signatures.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateIndexConfig(&config); err != nil {
				return err
			}

			logrus.Info("Starting index generation...")
			logrus.Debugf("Configuration: %+v", config)

			return runIndex(cmd.Context(), &config)
		},
	}

	// Input/Output flags
	cmd.Flags().StringVarP(&config.InputDir, "input-dir", "i", ".", "Input directory to scan")
	cmd.Flags().StringVarP(&config.OutputDir, "output-dir", "o", "./repo", "Output directory")

	// GPG signing flags
	cmd.Flags().StringVarP(&config.GPGKeyPath, "gpg-key", "k", "", "Path to GPG private key")
	cmd.Flags().StringVarP(&config.GPGPassphrase, "gpg-passphrase", "p", "", "GPG key passphrase")

	// Index metadata flags
	cmd.Flags().StringVar(&config.Origin, "origin", "", "Repository origin name")
	cmd.Flags().StringVar(&config.Label, "label", "", "Repository label")
	cmd.Flags().BoolVar(&config.Incremental, "incremental", false, "Keep extensions of an existing index")

	return cmd
}

func validateIndexConfig(config *models.IndexConfig) error {
	if config.InputDir == "" {
		return &models.ExtMgrError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("input-dir is required"),
		}
	}

	if config.OutputDir == "" {
		return &models.ExtMgrError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("output-dir is required"),
		}
	}

	if config.Origin == "" {
		config.Origin = "Extension Repository"
	}
	if config.Label == "" {
		config.Label = config.Origin
	}

	return nil
}

func runIndex(ctx context.Context, config *models.IndexConfig) error {
	logrus.Infof("Scanning directory: %s", config.InputDir)
	sc := scanner.NewFileSystemScanner(config.OutputDir)
	scanned, err := sc.Scan(ctx, config.InputDir)
	if err != nil {
		return &models.ExtMgrError{
			Type: models.ErrFileOp,
			Err:  fmt.Errorf("failed to scan directory: %w", err),
		}
	}

	packages := make([]models.Package, 0, len(scanned))
	for _, archive := range scanned {
		logrus.Debugf("Parsing %s archive: %s", archive.Type, archive.Path)
		pkg, err := index.ParseArchive(archive.Path)
		if err != nil {
			logrus.Warnf("Failed to parse %s: %v", archive.Path, err)
			continue
		}
		packages = append(packages, *pkg)
	}

	if len(packages) == 0 && !config.Incremental {
		logrus.Warn("No extension archives found in input directory")
		return nil
	}

	var gpgSigner signer.Signer
	if config.GPGKeyPath != "" {
		gpgSigner, err = signer.NewGPGSigner(config.GPGKeyPath, config.GPGPassphrase)
		if err != nil {
			return &models.ExtMgrError{
				Type: models.ErrSigning,
				Err:  fmt.Errorf("failed to initialize GPG signer: %w", err),
			}
		}
		logrus.Info("GPG signer initialized")
	}

	gen := index.NewGenerator(gpgSigner)
	if err := gen.ValidatePackages(packages); err != nil {
		return &models.ExtMgrError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("extension validation failed: %w", err),
		}
	}

	logrus.Infof("Generating index with %d extensions...", len(packages))
	if err := gen.Generate(ctx, config, packages); err != nil {
		return &models.ExtMgrError{
			Type: models.ErrIndexParse,
			Err:  fmt.Errorf("failed to generate index: %w", err),
		}
	}

	logrus.Info("Index generation completed successfully!")
	logrus.Infof("Output directory: %s", config.OutputDir)

	return nil
}
