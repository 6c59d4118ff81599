package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/rtmp-auth/internal/cryptox"
)

func (a *App) keygenCmd() *cobra.Command {
	var copyKey bool

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a random stream key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := cryptox.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, key)

			if copyKey {
				if err := a.clipboard.WriteAll(key); err != nil {
					return fmt.Errorf("copy to clipboard: %w", err)
				}
				fmt.Fprintln(a.errOut, "copied to clipboard")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&copyKey, "copy", false, "also copy the key to the clipboard")
	return cmd
}

func (a *App) hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a frontend password for frontend.password_hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := a.readPassword()
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			if len(pw) == 0 {
				return errors.New("password must not be empty")
			}

			hash, err := cryptox.HashPassword(pw)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, hash)
			return nil
		},
	}
}
