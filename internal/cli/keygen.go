package cli

import (
	"fmt"

	"github.com/ralt/extmgr/internal/messages"
	"github.com/ralt/extmgr/internal/signer"
	"github.com/spf13/cobra"
)

// NewKeygenCmd creates the keygen command
func NewKeygenCmd() *cobra.Command {
	var name, email, dir string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: messages.KeygenShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			private, public, err := signer.GenerateKeyPair(name, email, dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Private key: %s\nPublic key:  %s\n", private, public)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "extmgr", "Key owner name")
	cmd.Flags().StringVar(&email, "email", "", "Key owner email")
	cmd.Flags().StringVarP(&dir, "output-dir", "o", ".", "Directory for the key files")

	return cmd
}
