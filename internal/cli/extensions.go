package cli

import (
	"errors"
	"fmt"

	"github.com/ralt/extmgr/internal/config"
	"github.com/ralt/extmgr/internal/messages"
	"github.com/ralt/extmgr/internal/models"
	"github.com/ralt/extmgr/internal/orchestrator"
	"github.com/spf13/cobra"
)

// installOutput is printed by install commands that do not run a full attempt
type installOutput struct {
	Result models.InstallResult `json:"result"`
	Errors models.ErrorMap      `json:"errors"`
}

// errorsToErr turns a non-empty error map into the command error
func errorsToErr(errs models.ErrorMap) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.New(errs.String())
}

// NewCheckCmd creates the check command
func NewCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <extension> [version]",
		Short: messages.CheckShort,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, version, err := keyAndVersion(args)
			if err != nil {
				return err
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			pkg, err := a.findPackage(cmd.Context(), key, version)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), a.orchestrator.CheckDependencies(cmd.Context(), pkg))
		},
	}
}

// NewInstallCmd creates the install command
func NewInstallCmd() *cobra.Command {
	var (
		downloadPath string
		skipCheck    bool
		yes          bool
	)

	cmd := &cobra.Command{
		Use:   "install <extension> [version]",
		Short: messages.InstallShort,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, version, err := keyAndVersion(args)
			if err != nil {
				return err
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			pkg, err := a.findPackage(cmd.Context(), key, version)
			if err != nil {
				return err
			}

			if skipCheck {
				result, errs := a.orchestrator.InstallWithoutDependencyCheck(cmd.Context(), pkg)
				if err := writeJSON(cmd.OutOrStdout(), installOutput{Result: result, Errors: errs}); err != nil {
					return err
				}
				return errorsToErr(errs)
			}

			var confirm func(orchestrator.DependencyCheck) bool
			needsConfirmation := false
			switch {
			case yes:
			case isInteractive():
				confirm = confirmDependencies(pkg.Key)
			default:
				confirm = func(orchestrator.DependencyCheck) bool {
					needsConfirmation = true
					return false
				}
			}

			attempt := a.orchestrator.Run(cmd.Context(), pkg, downloadPath, confirm)
			if needsConfirmation {
				if err := writeJSON(cmd.OutOrStdout(), attempt.Check); err != nil {
					return err
				}
				return errors.New(messages.InstallRequiresConfirmation)
			}
			if err := writeJSON(cmd.OutOrStdout(), attempt); err != nil {
				return err
			}

			switch {
			case attempt.Declined:
				return errors.New(messages.InstallCancelled)
			case attempt.Phase == orchestrator.PhaseResolveError && attempt.Check.HasErrors:
				return errors.New(attempt.Check.Message)
			default:
				return errorsToErr(attempt.Errors)
			}
		},
	}

	cmd.Flags().StringVarP(&downloadPath, "path", "p", config.DefaultDownloadPath, messages.InstallFlagPath)
	cmd.Flags().BoolVar(&skipCheck, "skip-dependency-check", false, messages.InstallFlagSkipCheck)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, messages.InstallFlagYes)

	return cmd
}

// NewUpdateCmd creates the update command
func NewUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <extension> [version]",
		Short: messages.UpdateShort,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, version, err := keyAndVersion(args)
			if err != nil {
				return err
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			// The outcome is reported through notifications
			a.orchestrator.UpdateExtension(cmd.Context(), key, version)
			return nil
		},
	}
}

// NewCommentsCmd creates the comments command
func NewCommentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "comments <extension> <from-version> <to-version>",
		Short: messages.CommentsShort,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			comments, err := a.orchestrator.UpdateCommentsForVersionRange(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return fmt.Errorf("failed to read update comments of %s: %w", args[0], err)
			}
			return writeJSON(cmd.OutOrStdout(), comments)
		},
	}
}

// NewDistributionCmd creates the distribution command
func NewDistributionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "distribution <extension> [version]",
		Short: messages.DistributionShort,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, version, err := keyAndVersion(args)
			if err != nil {
				return err
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			pkg, err := a.findPackage(cmd.Context(), key, version)
			if err != nil {
				return err
			}
			result, errs := a.orchestrator.InstallDistribution(cmd.Context(), pkg)
			if err := writeJSON(cmd.OutOrStdout(), installOutput{Result: result, Errors: errs}); err != nil {
				return err
			}
			return errorsToErr(errs)
		},
	}
}

type listedExtension struct {
	Key          string `json:"key"`
	Version      string `json:"version"`
	Path         string `json:"path"`
	DownloadPath string `json:"downloadPath,omitempty"`
	Active       bool   `json:"active"`
}

// NewListCmd creates the list command
func NewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: messages.ListShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			listed := []listedExtension{}
			for _, key := range a.store.Keys() {
				e, _ := a.store.Get(key)
				listed = append(listed, listedExtension{
					Key:          key,
					Version:      e.Version,
					Path:         e.Path,
					DownloadPath: e.DownloadPath,
					Active:       e.Active,
				})
			}
			return writeJSON(cmd.OutOrStdout(), listed)
		},
	}
}
